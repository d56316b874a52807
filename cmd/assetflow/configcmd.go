package main

import (
	"fmt"
	"os"

	"assetflow/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
		// Overrides the root pre-run: no stores are opened for config work.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", a.configPath)
			}
			if err := config.DefaultConfig().Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintln(a.out, a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after environment overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.tenant != "" {
				cfg.Tenant = a.tenant
			}
			enc := yaml.NewEncoder(a.out)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	cmd.AddCommand(initCmd, show)
	return cmd
}
