package main

import (
	"strings"

	"assetflow/internal/core"
	"assetflow/pkg/domain"

	"github.com/spf13/cobra"
)

func newAssetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "asset", Short: "Register and move physical assets and consumables"}
	cmd.AddCommand(
		assetCreateCmd(a),
		assetGetCmd(a),
		assetListCmd(a),
		assetTransitionCmd(a),
		assetIssueCmd(a),
		assetReturnCmd(a),
		assetConditionCmd(a),
		assetRelocateCmd(a),
		assetRetireCmd(a),
		assetDisposeCmd(a),
		assetEventsCmd(a),
	)
	return cmd
}

func assetCreateCmd(a *app) *cobra.Command {
	var in core.NewAsset
	var itemType, status, condition string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an asset or consumable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			in.ItemType = domain.ItemType(strings.ToUpper(itemType))
			in.AvailableStatus = domain.AvailableStatus(strings.ToUpper(status))
			in.Condition = domain.Condition(strings.ToUpper(condition))
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			asset, err := a.assets.CreateAsset(ctx, a.cfg.Tenant, in, actor)
			if err != nil {
				return err
			}
			return a.printView(asset.ID, asset.Version, asset)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.ID, "id", "", "asset id (generated when empty)")
	f.StringVar(&in.Name, "name", "", "display name")
	f.StringVar(&itemType, "type", string(domain.ItemTypeAsset), "ASSET or CONSUMABLE")
	f.StringVar(&status, "status", "", "initial status: AVAILABLE or AWAITING_DEPLOY")
	f.StringVar(&condition, "condition", "", "condition grade (default NEW)")
	f.StringVar(&in.CustodianStaffID, "custodian", "", "custodian staff id")
	f.StringVar(&in.Location, "location", "", "location")
	f.IntVar(&in.CurrentStock, "stock", 0, "current stock (consumables)")
	f.IntVar(&in.MinimumStock, "minimum", 0, "minimum stock (consumables)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func assetGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <asset-id>",
		Short: "Show one asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			asset, err := a.assets.GetAsset(ctx, a.cfg.Tenant, args[0])
			if err != nil {
				return err
			}
			return a.printView(asset.ID, asset.Version, asset)
		},
	}
}

func assetListCmd(a *app) *cobra.Command {
	var itemType, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := domain.Query{OrderBy: []domain.Order{{Field: "name"}}, Limit: limit}
			if itemType != "" {
				q.Filters = append(q.Filters, domain.Where("item_type", domain.OpEq, strings.ToUpper(itemType)))
			}
			if status != "" {
				q.Filters = append(q.Filters, domain.Where("available_status", domain.OpEq, strings.ToUpper(status)))
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			assets, err := a.assets.ListAssets(ctx, a.cfg.Tenant, q)
			if err != nil {
				return err
			}
			return printList(a, assets, assetKey)
		},
	}
	cmd.Flags().StringVar(&itemType, "type", "", "filter by item type")
	cmd.Flags().StringVar(&status, "status", "", "filter by available status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	return cmd
}

// assetMutation builds a subcommand taking an asset id and an optional note.
func assetMutation(a *app, use, short string, nargs int, apply func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error)) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			asset, err := apply(cmd, args, actor, note)
			if err != nil {
				return err
			}
			return a.printView(asset.ID, asset.Version, asset)
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note recorded on the audit event")
	return cmd
}

func assetTransitionCmd(a *app) *cobra.Command {
	return assetMutation(a, "transition <asset-id> <status>", "Move an asset to another status", 2,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.TransitionStatus(ctx, a.cfg.Tenant, args[0], domain.AvailableStatus(strings.ToUpper(args[1])), actor, note)
		})
}

func assetIssueCmd(a *app) *cobra.Command {
	var custodian string
	cmd := assetMutation(a, "issue <asset-id>", "Hand an asset to a custodian", 1,
		func(cmd *cobra.Command, args []string, actor, _ string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.Issue(ctx, a.cfg.Tenant, args[0], custodian, actor)
		})
	cmd.Flags().StringVar(&custodian, "custodian", "", "custodian staff id (defaults to the current custodian)")
	return cmd
}

func assetReturnCmd(a *app) *cobra.Command {
	var condition string
	cmd := assetMutation(a, "return <asset-id>", "Take an asset back from its custodian", 1,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.Return(ctx, a.cfg.Tenant, args[0], domain.Condition(strings.ToUpper(condition)), actor, note)
		})
	cmd.Flags().StringVar(&condition, "condition", "", "condition on return")
	return cmd
}

func assetConditionCmd(a *app) *cobra.Command {
	return assetMutation(a, "condition <asset-id> <condition>", "Record a new condition grade", 2,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.ChangeCondition(ctx, a.cfg.Tenant, args[0], domain.Condition(strings.ToUpper(args[1])), actor, note)
		})
}

func assetRelocateCmd(a *app) *cobra.Command {
	return assetMutation(a, "relocate <asset-id> <location>", "Record a new location", 2,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.Relocate(ctx, a.cfg.Tenant, args[0], args[1], actor, note)
		})
}

func assetRetireCmd(a *app) *cobra.Command {
	return assetMutation(a, "retire <asset-id>", "Take an asset out of service", 1,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.Retire(ctx, a.cfg.Tenant, args[0], actor, note)
		})
}

func assetDisposeCmd(a *app) *cobra.Command {
	return assetMutation(a, "dispose <asset-id>", "Dispose of a retired asset", 1,
		func(cmd *cobra.Command, args []string, actor, note string) (domain.Asset, error) {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			return a.assets.Dispose(ctx, a.cfg.Tenant, args[0], actor, note)
		})
}

func assetEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events <asset-id>",
		Short: "Print the audit trail of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			events, err := a.assets.Events(ctx, a.cfg.Tenant, args[0])
			if err != nil {
				return err
			}
			return printList(a, events, eventKey)
		},
	}
}

func newStockCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Consumable stock levels"}
	var delta int
	var note string
	adjust := &cobra.Command{
		Use:   "adjust <consumable-id>",
		Short: "Add or remove stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := a.requireActor()
			if err != nil {
				return err
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			asset, err := a.assets.AdjustStock(ctx, a.cfg.Tenant, args[0], delta, actor, note)
			if err != nil {
				return err
			}
			return a.printView(asset.ID, asset.Version, asset)
		},
	}
	adjust.Flags().IntVar(&delta, "delta", 0, "units to add (negative to consume)")
	adjust.Flags().StringVar(&note, "note", "", "note recorded on the audit event")
	_ = adjust.MarkFlagRequired("delta")
	cmd.AddCommand(adjust)
	return cmd
}
