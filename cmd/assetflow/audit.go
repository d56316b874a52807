package main

import (
	"fmt"

	"assetflow/internal/core"

	"github.com/spf13/cobra"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit trail exports"}
	var assetID string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the audit trail as JSON lines to the blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.blobs == nil {
				return fmt.Errorf("audit export needs a blob store; set blob.driver")
			}
			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			exporter := core.NewExporter(a.store, a.blobs, a.opts...)
			info, err := exporter.ExportEvents(ctx, a.cfg.Tenant, assetID)
			if err != nil {
				return err
			}
			return a.print(info)
		},
	}
	export.Flags().StringVar(&assetID, "asset", "", "limit the export to one asset")
	cmd.AddCommand(export)
	return cmd
}
