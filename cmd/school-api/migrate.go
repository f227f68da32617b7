package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/school-suite-api/migrations"
	"github.com/noah-isme/school-suite-api/pkg/database"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rt, func(m *database.Migrator) error {
				changed, err := m.Up()
				if err != nil {
					return err
				}
				rt.logger.Info("migrations applied", zap.Bool("changed", changed))
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rt, func(m *database.Migrator) error {
				changed, err := m.Down(steps)
				if err != nil {
					return err
				}
				rt.logger.Info("migrations rolled back", zap.Int("steps", steps), zap.Bool("changed", changed))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rt, func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(rt *runtime, fn func(*database.Migrator) error) error {
	m, err := database.NewMigrator(rt.cfg.Database, migrations.FS)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			rt.logger.Warn("close migrator", zap.Error(err))
		}
	}()
	return fn(m)
}
