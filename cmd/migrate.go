package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teemow/slotkeeper/internal/config"
	"github.com/teemow/slotkeeper/internal/store"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the appointment store schema",
		Long: `Apply, roll back or inspect the database schema of the appointment store.

The serve command applies pending migrations on startup; use migrate to run
them ahead of a deployment or to roll back the last one.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file (default: $SLOTKEEPER_CONFIG)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath, cmd.OutOrStdout(), (*store.DB).Migrate)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath, cmd.OutOrStdout(), (*store.DB).MigrateDown)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath, cmd.OutOrStdout(), nil)
		},
	})

	return cmd
}

// runMigrate applies step, when not nil, and prints the resulting version.
func runMigrate(ctx context.Context, configPath string, out io.Writer, step func(*store.DB, context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, _, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == config.DriverMemory {
		return fmt.Errorf("the memory store has no schema to migrate")
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if step != nil {
		if err := step(db, ctx); err != nil {
			return err
		}
	}

	v, err := db.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version: %d\n", v)
	return nil
}
