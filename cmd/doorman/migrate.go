// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/doorman/internal/config"
	"github.com/holomush/doorman/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending migrations to the durable backend (sqlite or postgres).
The in-memory backend has no schema.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				cmd.Println("Running migrations...")
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(newMigrateStatusCmd())
	cmd.AddCommand(newMigrateDownCmd())
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied migration version and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("Dialect: %s\n", m.Dialect())
				cmd.Printf("Current version: %d", version)
				if dirty {
					cmd.Print(" (dirty)")
				}
				cmd.Println()

				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				cmd.Printf("Pending migrations (%d):\n", len(pending))
				for _, v := range pending {
					name, err := store.MigrationName(m.Dialect(), v)
					if err != nil {
						return err
					}
					cmd.Printf("  %s\n", name)
				}
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps <= 0 {
				return oops.Code("INVALID_STEPS").Errorf("--steps must be positive, got %d", steps)
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

// withMigrator runs fn with a migrator for the configured durable backend.
func withMigrator(cmd *cobra.Command, fn func(m *store.Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := newMigrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func newMigrator(ctx context.Context, cfg *config.Config) (*store.Migrator, error) {
	switch cfg.Storage.Durable {
	case config.DurableSQLite:
		db, err := openSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		m, err := store.NewSQLiteMigrator(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return m, nil
	case config.DurablePostgres:
		return store.NewPostgresMigrator(cfg.Storage.DatabaseURL)
	default:
		return nil, oops.Code("MIGRATION_UNSUPPORTED").
			With("durable", cfg.Storage.Durable).
			Errorf("the %s backend has no migrations", cfg.Storage.Durable)
	}
}
