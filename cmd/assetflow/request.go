package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"assetflow/internal/core"
	"assetflow/pkg/domain"

	"github.com/spf13/cobra"
)

func newRequestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "File, decide and fulfil asset requests"}
	cmd.AddCommand(
		requestCreateCmd(a),
		requestGetCmd(a),
		requestListCmd(a),
		requestDecideCmd(a),
		requestIssueCmd(a),
		requestCancelCmd(a),
		requestResubmitCmd(a),
		requestAckCmd(a),
		requestOverdueCmd(a),
	)
	return cmd
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q must be RFC 3339", domain.ErrInvalidRequest, raw)
	}
	return t, nil
}

func requestCreateCmd(a *app) *cobra.Command {
	var items []string
	var issue, due, purpose string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a request as the acting staff member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			issueDate, err := parseTime(issue)
			if err != nil {
				return err
			}
			returnDate, err := parseTime(due)
			if err != nil {
				return err
			}
			if returnDate.IsZero() {
				start := issueDate
				if start.IsZero() {
					start = time.Now().UTC()
				}
				returnDate = start.Add(a.cfg.LoanDuration())
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			req, err := a.workflow.CreateRequest(ctx, a.cfg.Tenant, core.NewRequest{
				RequesterStaffID:   actor,
				RequestedItems:     items,
				IssueDate:          issueDate,
				ExpectedReturnDate: returnDate,
				Purpose:            purpose,
			})
			if err != nil {
				return err
			}
			return a.printView(req.ID, req.Version, req)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&items, "item", nil, "requested item id; repeat a consumable id for several units")
	f.StringVar(&issue, "issue-date", "", "RFC 3339 issue date (default now)")
	f.StringVar(&due, "return-date", "", "RFC 3339 expected return date (default issue date plus the loan duration)")
	f.StringVar(&purpose, "purpose", "", "why the items are needed")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func requestGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <request-id>",
		Short: "Show one request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			req, err := a.workflow.GetRequest(ctx, a.cfg.Tenant, args[0])
			if err != nil {
				return err
			}
			return a.printView(req.ID, req.Version, req)
		},
	}
}

func requestListCmd(a *app) *cobra.Command {
	var status, requester string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := domain.Query{OrderBy: []domain.Order{{Field: "created_at", Desc: true}}}
			if status != "" {
				q.Filters = append(q.Filters, domain.Where("status", domain.OpEq, strings.ToUpper(status)))
			}
			if requester != "" {
				q.Filters = append(q.Filters, domain.Where("requester_staff_id", domain.OpEq, requester))
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			reqs, err := a.workflow.ListRequests(ctx, a.cfg.Tenant, q)
			if err != nil {
				return err
			}
			return printList(a, reqs, requestKey)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&requester, "requester", "", "filter by requester staff id")
	return cmd
}

func requestDecideCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:       "decide <request-id> <approve|deny>",
		Short:     "Approve or deny a pending request",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"approve", "deny"},
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			req, err := a.workflow.Decide(ctx, a.cfg.Tenant, args[0], domain.Decision(strings.ToUpper(args[1])), actor, reason)
			if err != nil {
				return err
			}
			return a.printView(req.ID, req.Version, req)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decision reason (required to deny)")
	return cmd
}

type issueOutput struct {
	RequestID string            `json:"request_id"`
	Status    string            `json:"status"`
	Issued    []string          `json:"issued"`
	Skipped   []string          `json:"skipped"`
	Reasons   map[string]string `json:"reasons,omitempty"`
}

func requestIssueCmd(a *app) *cobra.Command {
	var notesFile string
	cmd := &cobra.Command{
		Use:   "issue <request-id>",
		Short: "Hand out the items of an approved request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			var notes map[string]core.IssueNote
			if notesFile != "" {
				raw, err := os.ReadFile(notesFile)
				if err != nil {
					return fmt.Errorf("read notes: %w", err)
				}
				if err := json.Unmarshal(raw, &notes); err != nil {
					return fmt.Errorf("%w: notes file: %v", domain.ErrInvalidRequest, err)
				}
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			res, err := a.workflow.IssueAssets(ctx, a.cfg.Tenant, args[0], actor, notes)
			if err != nil {
				return err
			}
			out := issueOutput{
				RequestID: res.Request.ID,
				Status:    string(res.Request.Status),
				Issued:    append([]string{}, res.Issued...),
				Skipped:   append([]string{}, res.Skipped...),
			}
			if len(res.Reasons) > 0 {
				out.Reasons = make(map[string]string, len(res.Reasons))
				for id, err := range res.Reasons {
					out.Reasons[id] = err.Error()
				}
			}
			return a.print(out)
		},
	}
	cmd.Flags().StringVar(&notesFile, "notes", "", `JSON file mapping asset id to {"accessories":[...],"notes":"..."}`)
	return cmd
}

func requestCancelCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Withdraw your own pending or approved request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			req, err := a.workflow.Cancel(ctx, a.cfg.Tenant, args[0], actor, reason)
			if err != nil {
				return err
			}
			return a.printView(req.ID, req.Version, req)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func requestResubmitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit <request-id>",
		Short: "File a new request copying a denied or cancelled one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			req, err := a.workflow.Resubmit(ctx, a.cfg.Tenant, args[0], actor)
			if err != nil {
				return err
			}
			return a.printView(req.ID, req.Version, req)
		},
	}
}

func requestAckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ack <issue-id>",
		Short: "Acknowledge receipt of an issued asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			is, err := a.workflow.AcknowledgeIssue(ctx, a.cfg.Tenant, args[0], actor)
			if err != nil {
				return err
			}
			return a.printView(is.ID, is.Version, is)
		},
	}
}

func requestOverdueCmd(a *app) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List issued assets past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			at, err := parseTime(asOf)
			if err != nil {
				return err
			}
			if at.IsZero() {
				at = time.Now().UTC()
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			issues, err := a.workflow.OverdueIssues(ctx, a.cfg.Tenant, at)
			if err != nil {
				return err
			}
			return printList(a, issues, issueKey)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC 3339 instant (default now)")
	return cmd
}
