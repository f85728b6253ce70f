// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/doorman/internal/auth"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the demo accounts",
		Long: `Writes the free and pro demo accounts when the durable backend holds no
users record yet. Existing records are never overwritten, so running it
again is harmless.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Auth.SeedDemoAccounts = true

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			dir, err := newDirectory(cfg, b, slog.Default())
			if err != nil {
				return err
			}
			if err := dir.Load(ctx); err != nil {
				return oops.Code("SEED_FAILED").With("operation", "load directory").Wrap(err)
			}

			accounts, err := dir.Accounts(ctx)
			if err != nil {
				return err
			}
			for _, email := range []string{auth.DemoFreeEmail, auth.DemoProEmail} {
				if !hasEmail(accounts, email) {
					cmd.Printf("Demo account %s is missing from the existing users record\n", email)
					continue
				}
				cmd.Printf("Demo account ready: %s\n", email)
			}
			cmd.Printf("Directory holds %d account(s)\n", len(accounts))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for storage operations (e.g., 30s, 1m)")
	return cmd
}

func hasEmail(accounts []auth.Account, email string) bool {
	for i := range accounts {
		if accounts[i].Email == email {
			return true
		}
	}
	return false
}
