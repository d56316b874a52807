package core

import (
	"assetflow/pkg/domain"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RequestWorkflow owns the request state machine and orchestrates the asset
// and stock side effects of decisions, issuance and cancellation.
type RequestWorkflow struct {
	assets *AssetLifecycle
	store  domain.DocumentStore
	opts   options
}

// NewRequestWorkflow builds a workflow over assets. It inherits the asset
// engine's options; opts override them.
func NewRequestWorkflow(assets *AssetLifecycle, opts ...Option) *RequestWorkflow {
	o := assets.opts
	for _, opt := range opts {
		opt(&o)
	}
	return &RequestWorkflow{assets: assets, store: assets.store, opts: o}
}

// Assets returns the underlying asset engine.
func (w *RequestWorkflow) Assets() *AssetLifecycle { return w.assets }

// NewRequest is a staff member's ask for items. Repeating a consumable id
// requests several units.
type NewRequest struct {
	RequesterStaffID   string
	RequestedItems     []string
	IssueDate          time.Time // now when zero
	ExpectedReturnDate time.Time
	Purpose            string
}

// IssueNote carries the hand-off details recorded for one asset.
type IssueNote struct {
	Accessories []string `json:"accessories,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// IssueResult reports which items of a request were handed out.
type IssueResult struct {
	Request domain.AssetRequest
	Issued  []string
	Skipped []string
	// Reasons holds the guard failure for each skipped item.
	Reasons map[string]error
}

// CreateRequest validates and stores a PENDING request.
func (w *RequestWorkflow) CreateRequest(ctx context.Context, tenant string, in NewRequest) (domain.AssetRequest, error) {
	return instrument(ctx, &w.opts, "create_request", func(ctx context.Context) (domain.AssetRequest, error) {
		return w.createRequest(ctx, tenant, in, "", w.opts.clock.Now())
	})
}

func (w *RequestWorkflow) createRequest(ctx context.Context, tenant string, in NewRequest, resubmittedFrom string, now time.Time) (domain.AssetRequest, error) {
	requester := strings.TrimSpace(in.RequesterStaffID)
	if err := requireScope(tenant, requester); err != nil {
		return domain.AssetRequest{}, err
	}
	if len(in.RequestedItems) == 0 {
		return domain.AssetRequest{}, invalid("at least one item required")
	}
	issueDate := in.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}
	if issueDate.Before(now) {
		return domain.AssetRequest{}, invalid("issue date %s is in the past", issueDate.Format(time.RFC3339))
	}
	if !in.ExpectedReturnDate.After(issueDate) {
		return domain.AssetRequest{}, invalid("expected return date must be after the issue date")
	}

	req := domain.AssetRequest{
		RequesterStaffID:   requester,
		RequestedItems:     append([]string(nil), in.RequestedItems...),
		Status:             domain.RequestPending,
		IssueDate:          issueDate.UTC(),
		ExpectedReturnDate: in.ExpectedReturnDate.UTC(),
		Purpose:            strings.TrimSpace(in.Purpose),
		ResubmittedFrom:    resubmittedFrom,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	order, counts := req.Quantities()
	items, err := w.loadItems(ctx, tenant, order)
	if err != nil {
		return domain.AssetRequest{}, err
	}
	for _, id := range order {
		a := items[id]
		if counts[id] > 1 && !a.IsConsumable() {
			return domain.AssetRequest{}, invalid("physical asset %s requested %d times", id, counts[id])
		}
		if a.AvailableStatus == domain.StatusDisposed || (!a.IsConsumable() && a.AvailableStatus == domain.StatusRetired) {
			return domain.AssetRequest{}, invalid("asset %s is %s", id, strings.ToLower(string(a.AvailableStatus)))
		}
	}

	fields, err := toFields(req)
	if err != nil {
		return domain.AssetRequest{}, err
	}
	doc, err := w.store.Create(ctx, tenant, domain.CollectionRequests, "", fields)
	if err != nil {
		return domain.AssetRequest{}, fmt.Errorf("create request: %w", err)
	}
	return decodeRequest(doc)
}

// loadItems reads every id concurrently. The first failure cancels the rest.
func (w *RequestWorkflow) loadItems(ctx context.Context, tenant string, ids []string) (map[string]domain.Asset, error) {
	loaded := make([]domain.Asset, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			a, err := w.assets.load(gctx, tenant, id)
			if err != nil {
				return err
			}
			loaded[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Asset, len(ids))
	for i, id := range ids {
		out[id] = loaded[i]
	}
	return out, nil
}

// GetRequest loads one request.
func (w *RequestWorkflow) GetRequest(ctx context.Context, tenant, id string) (domain.AssetRequest, error) {
	if tenant == "" {
		return domain.AssetRequest{}, domain.ErrMissingTenant
	}
	return w.loadRequest(ctx, tenant, id)
}

// ListRequests runs q over the tenant's requests.
func (w *RequestWorkflow) ListRequests(ctx context.Context, tenant string, q domain.Query) ([]domain.AssetRequest, error) {
	docs, err := w.store.List(ctx, tenant, domain.CollectionRequests, q)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]domain.AssetRequest, 0, len(docs))
	for _, doc := range docs {
		r, err := decodeRequest(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Decide approves or denies a PENDING request. Approving a request made only
// of consumables deducts every line or none and fulfils the request in the
// same decision; any other approval leaves the request APPROVED for
// issuance. Denial requires a reason, which is appended to the purpose.
func (w *RequestWorkflow) Decide(ctx context.Context, tenant, requestID string, decision domain.Decision, actor, reason string) (domain.AssetRequest, error) {
	return instrument(ctx, &w.opts, "decide_request", func(ctx context.Context) (domain.AssetRequest, error) {
		if err := requireScope(tenant, actor); err != nil {
			return domain.AssetRequest{}, err
		}
		reason = strings.TrimSpace(reason)
		switch decision {
		case domain.DecisionApprove, domain.DecisionDeny:
		default:
			return domain.AssetRequest{}, invalid("unknown decision %q", decision)
		}
		if decision == domain.DecisionDeny && reason == "" {
			return domain.AssetRequest{}, fmt.Errorf("%w: denial of %s", domain.ErrMissingReason, requestID)
		}

		unlock := w.assets.locks.Lock(lockKey(tenant, "request", requestID))
		defer unlock()

		if decision == domain.DecisionDeny {
			return w.updateRequest(ctx, "decide_request", tenant, requestID, func(r *domain.AssetRequest) error {
				if err := requirePending(*r, domain.RequestDenied); err != nil {
					return err
				}
				r.Status = domain.RequestDenied
				r.Purpose = appendReason(r.Purpose, reason)
				w.stampDecision(r, actor)
				return nil
			})
		}

		req, err := w.loadRequest(ctx, tenant, requestID)
		if err != nil {
			return domain.AssetRequest{}, err
		}
		if err := requirePending(req, domain.RequestApproved); err != nil {
			return domain.AssetRequest{}, err
		}
		order, _ := req.Quantities()
		items, err := w.loadItems(ctx, tenant, order)
		if err != nil {
			return domain.AssetRequest{}, err
		}
		allConsumable := true
		for _, id := range order {
			if !items[id].IsConsumable() {
				allConsumable = false
				break
			}
		}
		if allConsumable {
			return w.approveConsumables(ctx, tenant, requestID, actor, reason)
		}
		return w.approveAssets(ctx, tenant, requestID, actor)
	})
}

func requirePending(r domain.AssetRequest, to domain.RequestStatus) error {
	if r.Status != domain.RequestPending {
		return domain.TransitionError{Entity: "request", ID: r.ID, From: string(r.Status), To: string(to)}
	}
	return nil
}

func appendReason(purpose, reason string) string {
	line := "Denial reason: " + reason
	if strings.TrimSpace(purpose) == "" {
		return line
	}
	return purpose + "\n\n" + line
}

func (w *RequestWorkflow) stampDecision(r *domain.AssetRequest, actor string) {
	now := w.opts.clock.Now()
	r.DecidedBy = actor
	r.DecidedAt = &now
}

// stockLine is one consumable line of an approval: the asset as read before
// deduction and the asset as written.
type stockLine struct {
	before   domain.Asset
	after    domain.Asset
	quantity int
}

// approveConsumables holds the request key and takes every consumable key
// in sorted order. All lines are validated before any is written; a write
// failure restores the lines already written.
func (w *RequestWorkflow) approveConsumables(ctx context.Context, tenant, requestID, actor, reason string) (domain.AssetRequest, error) {
	req, err := w.loadRequest(ctx, tenant, requestID)
	if err != nil {
		return domain.AssetRequest{}, err
	}
	order, counts := req.Quantities()
	keys := make([]string, len(order))
	for i, id := range order {
		keys[i] = lockKey(tenant, "asset", id)
	}
	unlock := w.assets.locks.LockAll(keys)
	defer unlock()

	for attempt := 0; ; attempt++ {
		req, err = w.loadRequest(ctx, tenant, requestID)
		if err != nil {
			return domain.AssetRequest{}, err
		}
		if err := requirePending(req, domain.RequestFulfilled); err != nil {
			return domain.AssetRequest{}, err
		}

		lines := make([]stockLine, 0, len(order))
		var shortfalls []error
		for _, id := range order {
			a, err := w.assets.load(ctx, tenant, id)
			if err != nil {
				return domain.AssetRequest{}, err
			}
			if !a.IsConsumable() {
				return domain.AssetRequest{}, fmt.Errorf("%w: %s changed type", domain.ErrNotAConsumable, id)
			}
			if a.CurrentStock < counts[id] {
				shortfalls = append(shortfalls, domain.NewInsufficientStockError(id, a.CurrentStock, counts[id]))
				continue
			}
			lines = append(lines, stockLine{before: a, quantity: counts[id]})
		}
		if len(shortfalls) > 0 {
			return domain.AssetRequest{}, fmt.Errorf("approve request %s: %w", requestID, errors.Join(shortfalls...))
		}

		written, err := w.deductLines(ctx, tenant, lines)
		if err == nil {
			req.Status = domain.RequestFulfilled
			w.stampDecision(&req, actor)
			var saved domain.AssetRequest
			saved, err = w.saveRequest(ctx, tenant, req)
			if err == nil {
				for _, line := range written {
					note := fmt.Sprintf("request %s", requestID)
					if reason != "" {
						note += ": " + reason
					}
					w.assets.appendEvent(ctx, tenant, domain.AssetEvent{
						AssetID:      line.before.ID,
						EventType:    domain.EventStockAdjusted,
						FromValue:    fmt.Sprint(line.before.CurrentStock),
						ToValue:      fmt.Sprint(line.after.CurrentStock),
						ActorStaffID: actor,
						Note:         note,
					})
				}
				return saved, nil
			}
		}
		if cerr := w.restoreLines(ctx, tenant, written); cerr != nil {
			return domain.AssetRequest{}, errors.Join(err, cerr)
		}
		if errors.Is(err, domain.ErrVersionConflict) && attempt < w.opts.maxRetries {
			w.opts.conflict("decide_request")
			w.opts.logger.Debug("version conflict during approval, retrying",
				zap.String("request_id", requestID),
				zap.Int("attempt", attempt+1))
			continue
		}
		return domain.AssetRequest{}, fmt.Errorf("approve request %s: %w", requestID, err)
	}
}

// deductLines writes each line against the version it was validated at and
// returns the lines written so far, even on error.
func (w *RequestWorkflow) deductLines(ctx context.Context, tenant string, lines []stockLine) ([]stockLine, error) {
	written := make([]stockLine, 0, len(lines))
	for _, line := range lines {
		next := line.before
		if _, err := stockChange(&next, -line.quantity, ""); err != nil {
			return written, err
		}
		saved, err := w.assets.save(ctx, tenant, next, line.before.Version)
		if err != nil {
			return written, err
		}
		line.after = saved
		written = append(written, line)
	}
	return written, nil
}

// restoreLines puts back the stock of lines written by a failed approval.
func (w *RequestWorkflow) restoreLines(ctx context.Context, tenant string, written []stockLine) error {
	var errs []error
	for i := len(written) - 1; i >= 0; i-- {
		line := written[i]
		next := line.after
		next.CurrentStock = line.before.CurrentStock
		next.Status = domain.DeriveStockStatus(next.CurrentStock, next.MinimumStock)
		if _, err := w.assets.save(ctx, tenant, next, line.after.Version); err != nil {
			w.opts.logger.Error("stock compensation failed",
				zap.String("tenant", tenant),
				zap.String("asset_id", line.before.ID),
				zap.Int("expected_stock", line.before.CurrentStock),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("restore %s: %w", line.before.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (w *RequestWorkflow) approveAssets(ctx context.Context, tenant, requestID, actor string) (domain.AssetRequest, error) {
	req, err := w.updateRequest(ctx, "decide_request", tenant, requestID, func(r *domain.AssetRequest) error {
		if err := requirePending(*r, domain.RequestApproved); err != nil {
			return err
		}
		r.Status = domain.RequestApproved
		w.stampDecision(r, actor)
		return nil
	})
	if err != nil || !w.opts.reserveOnApproval {
		return req, err
	}
	var reserved []string
	order, _ := req.Quantities()
	for _, id := range order {
		_, err := w.assets.mutate(ctx, "reserve_asset", tenant, id, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			if a.IsConsumable() || a.AvailableStatus != domain.StatusAvailable {
				return domain.AssetEvent{}, errSkipReservation
			}
			return transitionChange(a, domain.StatusReserved, "reserved for request "+requestID)
		})
		switch {
		case err == nil:
			reserved = append(reserved, id)
		case !errors.Is(err, errSkipReservation):
			w.opts.logger.Warn("reservation skipped",
				zap.String("request_id", requestID),
				zap.String("asset_id", id),
				zap.Error(err))
		}
	}
	if len(reserved) == 0 {
		return req, nil
	}
	saved, err := w.updateRequest(ctx, "decide_request", tenant, requestID, func(r *domain.AssetRequest) error {
		r.ReservedItems = reserved
		return nil
	})
	if err != nil {
		// The assets stay RESERVED but cancelling will not release them.
		w.opts.logger.Error("reservations not recorded on request",
			zap.String("tenant", tenant),
			zap.String("request_id", requestID),
			zap.Strings("asset_ids", reserved),
			zap.Error(err))
		return req, nil
	}
	return saved, nil
}

var errSkipReservation = errors.New("nothing to reserve")

// IssueAssets hands out the items of an APPROVED request to its requester.
// The request is claimed as FULFILLED with a version-checked write before
// any asset or stock is touched, so a failed claim changes nothing and a
// request is only ever issued once. Each item is then attempted
// independently: one that fails its guard is skipped and logged while the
// rest proceed. When no item could be issued the request is put back to
// APPROVED so it can be issued again later (decision 4 in DESIGN.md).
func (w *RequestWorkflow) IssueAssets(ctx context.Context, tenant, requestID, actor string, notes map[string]IssueNote) (IssueResult, error) {
	return instrument(ctx, &w.opts, "issue_assets", func(ctx context.Context) (IssueResult, error) {
		if err := requireScope(tenant, actor); err != nil {
			return IssueResult{}, err
		}
		unlock := w.assets.locks.Lock(lockKey(tenant, "request", requestID))
		defer unlock()

		req, err := w.updateRequest(ctx, "issue_assets", tenant, requestID, func(r *domain.AssetRequest) error {
			if r.Status != domain.RequestApproved {
				return domain.TransitionError{Entity: "request", ID: requestID, From: string(r.Status), To: string(domain.RequestFulfilled)}
			}
			r.Status = domain.RequestFulfilled
			return nil
		})
		if err != nil {
			return IssueResult{}, err
		}

		result := IssueResult{Request: req, Reasons: map[string]error{}}
		order, counts := req.Quantities()
		for _, id := range order {
			if err := w.issueOne(ctx, tenant, req, id, counts[id], actor, notes[id]); err != nil {
				w.opts.logger.Info("item skipped during issuance",
					zap.String("tenant", tenant),
					zap.String("request_id", requestID),
					zap.String("asset_id", id),
					zap.Error(err))
				result.Skipped = append(result.Skipped, id)
				result.Reasons[id] = err
				continue
			}
			result.Issued = append(result.Issued, id)
		}

		if len(result.Issued) > 0 {
			return result, nil
		}
		reverted, err := w.updateRequest(ctx, "issue_assets", tenant, requestID, func(r *domain.AssetRequest) error {
			r.Status = domain.RequestApproved
			return nil
		})
		if err != nil {
			w.opts.logger.Error("request left fulfilled with nothing issued",
				zap.String("tenant", tenant),
				zap.String("request_id", requestID),
				zap.Error(err))
			return result, fmt.Errorf("reopen request %s: %w", requestID, err)
		}
		result.Request = reverted
		return result, nil
	})
}

func (w *RequestWorkflow) issueOne(ctx context.Context, tenant string, req domain.AssetRequest, assetID string, quantity int, actor string, note IssueNote) error {
	var before domain.Asset
	issued, err := w.assets.mutate(ctx, "issue_asset", tenant, assetID, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
		before = *a
		if a.IsConsumable() {
			return stockChange(a, -quantity, "request "+req.ID)
		}
		return issueChange(a, req.RequesterStaffID, "request "+req.ID)
	})
	if err != nil {
		return err
	}
	if issued.IsConsumable() {
		return nil
	}

	now := w.opts.clock.Now()
	record := domain.AssetIssue{
		RequestID:         req.ID,
		AssetID:           assetID,
		CustodianStaffID:  req.RequesterStaffID,
		IssuedBy:          actor,
		PreIssueCondition: before.CurrentCondition,
		Accessories:       append([]string{}, note.Accessories...),
		Notes:             strings.TrimSpace(note.Notes),
		DueDate:           req.ExpectedReturnDate,
		IssuedAt:          now,
	}
	fields, err := toFields(record)
	if err == nil {
		var doc domain.Document
		doc, err = w.store.Create(ctx, tenant, domain.CollectionIssues, "", fields)
		if err == nil {
			record, err = decodeIssue(doc)
		}
	}
	if err != nil {
		w.opts.logger.Error("issue record not written",
			zap.String("tenant", tenant),
			zap.String("request_id", req.ID),
			zap.String("asset_id", assetID),
			zap.Error(err))
		return nil
	}
	w.writeReceipt(ctx, tenant, record, issued)
	return nil
}

// Cancel withdraws a PENDING or APPROVED request on behalf of its requester.
func (w *RequestWorkflow) Cancel(ctx context.Context, tenant, requestID, requester, reason string) (domain.AssetRequest, error) {
	return instrument(ctx, &w.opts, "cancel_request", func(ctx context.Context) (domain.AssetRequest, error) {
		requester = strings.TrimSpace(requester)
		if err := requireScope(tenant, requester); err != nil {
			return domain.AssetRequest{}, err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return domain.AssetRequest{}, fmt.Errorf("%w: cancellation of %s", domain.ErrMissingReason, requestID)
		}
		unlock := w.assets.locks.Lock(lockKey(tenant, "request", requestID))
		defer unlock()

		var prior domain.RequestStatus
		req, err := w.updateRequest(ctx, "cancel_request", tenant, requestID, func(r *domain.AssetRequest) error {
			if r.RequesterStaffID != requester {
				return fmt.Errorf("%w: %s did not request %s", domain.ErrNotRequester, requester, r.ID)
			}
			if !domain.CanTransitionRequest(r.Status, domain.RequestCancelled) {
				return fmt.Errorf("%w: request %s is %s", domain.ErrNotCancellable, r.ID, r.Status)
			}
			prior = r.Status
			r.Status = domain.RequestCancelled
			r.CancelledBy = requester
			r.CancelReason = reason
			return nil
		})
		if err != nil {
			return domain.AssetRequest{}, err
		}
		if prior == domain.RequestApproved && w.opts.cancelPolicy == CancelReleaseReservations {
			w.releaseReservations(ctx, tenant, req, requester)
		}
		return req, nil
	})
}

// releaseReservations frees only the assets this request reserved.
func (w *RequestWorkflow) releaseReservations(ctx context.Context, tenant string, req domain.AssetRequest, actor string) {
	for _, id := range req.ReservedItems {
		_, err := w.assets.mutate(ctx, "release_reservation", tenant, id, actor, func(a *domain.Asset) (domain.AssetEvent, error) {
			if a.IsConsumable() || a.AvailableStatus != domain.StatusReserved {
				return domain.AssetEvent{}, errSkipReservation
			}
			return transitionChange(a, domain.StatusAvailable, "released: request "+req.ID+" cancelled")
		})
		if err != nil && !errors.Is(err, errSkipReservation) {
			w.opts.logger.Warn("reservation not released",
				zap.String("request_id", req.ID),
				zap.String("asset_id", id),
				zap.Error(err))
		}
	}
}

// Resubmit files a new PENDING request copying a DENIED or CANCELLED one.
// The original is left untouched; the copy points back at it. Dates that
// have passed are shifted to start now, keeping the loan length.
func (w *RequestWorkflow) Resubmit(ctx context.Context, tenant, requestID, requester string) (domain.AssetRequest, error) {
	return instrument(ctx, &w.opts, "resubmit_request", func(ctx context.Context) (domain.AssetRequest, error) {
		requester = strings.TrimSpace(requester)
		if err := requireScope(tenant, requester); err != nil {
			return domain.AssetRequest{}, err
		}
		orig, err := w.loadRequest(ctx, tenant, requestID)
		if err != nil {
			return domain.AssetRequest{}, err
		}
		if orig.RequesterStaffID != requester {
			return domain.AssetRequest{}, fmt.Errorf("%w: %s did not request %s", domain.ErrNotRequester, requester, orig.ID)
		}
		if orig.Status != domain.RequestDenied && orig.Status != domain.RequestCancelled {
			return domain.AssetRequest{}, invalid("request %s is %s, only denied or cancelled requests can be resubmitted", orig.ID, orig.Status)
		}
		now := w.opts.clock.Now()
		issue, due := orig.IssueDate, orig.ExpectedReturnDate
		if issue.Before(now) {
			loan := due.Sub(issue)
			issue, due = now, now.Add(loan)
		}
		return w.createRequest(ctx, tenant, NewRequest{
			RequesterStaffID:   orig.RequesterStaffID,
			RequestedItems:     orig.RequestedItems,
			IssueDate:          issue,
			ExpectedReturnDate: due,
			Purpose:            orig.Purpose,
		}, orig.ID, now)
	})
}

// AcknowledgeIssue records that the requester received an issued asset.
func (w *RequestWorkflow) AcknowledgeIssue(ctx context.Context, tenant, issueID, requester string) (domain.AssetIssue, error) {
	return instrument(ctx, &w.opts, "acknowledge_issue", func(ctx context.Context) (domain.AssetIssue, error) {
		requester = strings.TrimSpace(requester)
		if err := requireScope(tenant, requester); err != nil {
			return domain.AssetIssue{}, err
		}
		doc, err := w.store.Get(ctx, tenant, domain.CollectionIssues, issueID)
		if err != nil {
			return domain.AssetIssue{}, err
		}
		record, err := decodeIssue(doc)
		if err != nil {
			return domain.AssetIssue{}, err
		}
		if record.CustodianStaffID != requester {
			return domain.AssetIssue{}, fmt.Errorf("%w: issue %s belongs to %s", domain.ErrNotRequester, issueID, record.CustodianStaffID)
		}
		if record.AcknowledgedByRequester {
			return record, nil
		}
		now := w.opts.clock.Now()
		doc, err = w.store.Update(ctx, tenant, domain.CollectionIssues, issueID, domain.Fields{
			"acknowledged_by_requester": true,
			"acknowledged_at":           now.Format(time.RFC3339Nano),
		}, domain.IfVersion(record.Version))
		if err != nil {
			return domain.AssetIssue{}, err
		}
		return decodeIssue(doc)
	})
}

// ListIssues returns the hand-off records of a request, or of the whole
// tenant when requestID is empty.
func (w *RequestWorkflow) ListIssues(ctx context.Context, tenant, requestID string) ([]domain.AssetIssue, error) {
	q := domain.Query{OrderBy: []domain.Order{{Field: "issued_at"}}}
	if requestID != "" {
		q.Filters = []domain.Filter{domain.Where("request_id", domain.OpEq, requestID)}
	}
	docs, err := w.store.List(ctx, tenant, domain.CollectionIssues, q)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	out := make([]domain.AssetIssue, 0, len(docs))
	for _, doc := range docs {
		is, err := decodeIssue(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, is)
	}
	return out, nil
}

// OverdueIssues lists issues past their due date, plus the grace period, as
// of asOf whose asset is still held by the same custodian.
func (w *RequestWorkflow) OverdueIssues(ctx context.Context, tenant string, asOf time.Time) ([]domain.AssetIssue, error) {
	return instrument(ctx, &w.opts, "overdue_issues", func(ctx context.Context) ([]domain.AssetIssue, error) {
		if tenant == "" {
			return nil, domain.ErrMissingTenant
		}
		issues, err := w.ListIssues(ctx, tenant, "")
		if err != nil {
			return nil, err
		}
		var out []domain.AssetIssue
		for _, is := range issues {
			if !is.DueDate.Add(w.opts.overdueGrace).Before(asOf) {
				continue
			}
			a, err := w.assets.load(ctx, tenant, is.AssetID)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			held := a.AvailableStatus == domain.StatusInUse || a.AvailableStatus == domain.StatusAwaitingReturn
			if held && a.Custodian() == is.CustodianStaffID {
				out = append(out, is)
			}
		}
		return out, nil
	})
}

func (w *RequestWorkflow) loadRequest(ctx context.Context, tenant, id string) (domain.AssetRequest, error) {
	doc, err := w.store.Get(ctx, tenant, domain.CollectionRequests, id)
	if err != nil {
		return domain.AssetRequest{}, err
	}
	return decodeRequest(doc)
}

func (w *RequestWorkflow) saveRequest(ctx context.Context, tenant string, r domain.AssetRequest) (domain.AssetRequest, error) {
	r.UpdatedAt = w.opts.clock.Now()
	fields, err := toFields(r)
	if err != nil {
		return domain.AssetRequest{}, err
	}
	doc, err := w.store.Update(ctx, tenant, domain.CollectionRequests, r.ID, fields, domain.IfVersion(r.Version))
	if err != nil {
		return domain.AssetRequest{}, err
	}
	return decodeRequest(doc)
}

// updateRequest re-reads and re-validates the request after a version
// conflict, like mutateLocked does for assets.
func (w *RequestWorkflow) updateRequest(ctx context.Context, op, tenant, id string, change func(*domain.AssetRequest) error) (domain.AssetRequest, error) {
	for attempt := 0; ; attempt++ {
		r, err := w.loadRequest(ctx, tenant, id)
		if err != nil {
			return domain.AssetRequest{}, err
		}
		if err := change(&r); err != nil {
			return domain.AssetRequest{}, err
		}
		saved, err := w.saveRequest(ctx, tenant, r)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < w.opts.maxRetries {
			w.opts.conflict(op)
			continue
		}
		return saved, err
	}
}
