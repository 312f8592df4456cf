package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/attendance-tracker/internal/config"
	"github.com/example/attendance-tracker/internal/persistence/sqlite"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.DriverSQLite {
				return fmt.Errorf("migrate requires the %s storage driver, configured %q", config.DriverSQLite, cfg.StorageDriver)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if !statusOnly {
				applied, err := store.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "applied %d migration(s)\n", applied)
			}

			status, err := store.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			current := status.CurrentVersion
			if current == "" {
				current = "none"
			}
			fmt.Fprintf(out, "current version: %s\n", current)
			for _, m := range status.Pending {
				fmt.Fprintf(out, "pending: %s %s\n", m.Version, m.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "report migration state without applying anything")
	return cmd
}
