// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/doorman/internal/auth"
)

// accountView is the listed form of an account. Password hashes are omitted.
type accountView struct {
	ID        string    `json:"id" yaml:"id"`
	FullName  string    `json:"fullname" yaml:"fullname"`
	Email     string    `json:"email" yaml:"email"`
	Pro       bool      `json:"isPro" yaml:"is_pro"`
	ProExpiry string    `json:"proExpiry,omitempty" yaml:"pro_expiry,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

func viewOf(a *auth.Account) accountView {
	v := accountView{
		ID:        a.ID,
		FullName:  a.FullName,
		Email:     a.Email,
		Pro:       a.Pro,
		CreatedAt: a.CreatedAt,
	}
	if a.ProExpiry != nil {
		v.ProExpiry = a.ProExpiry.String()
	}
	return v
}

// NewAccountsCmd creates the accounts subcommand.
func NewAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect the user directory",
	}
	cmd.AddCommand(newAccountsListCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			b, err := openBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			dir, err := newDirectory(cfg, b, slog.Default())
			if err != nil {
				return err
			}
			accounts, err := dir.Accounts(ctx)
			if err != nil {
				return err
			}
			views := make([]accountView, 0, len(accounts))
			for i := range accounts {
				views = append(views, viewOf(&accounts[i]))
			}
			return writeAccounts(cmd.OutOrStdout(), format, views)
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format (yaml or json)")
	return cmd
}

func writeAccounts(w io.Writer, format string, views []accountView) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return oops.Code("OUTPUT_FAILED").With("format", format).Wrap(err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			return oops.Code("OUTPUT_FAILED").With("format", format).Wrap(err)
		}
		return nil
	default:
		return oops.Code("INVALID_FORMAT").Errorf("format must be 'yaml' or 'json', got %q", format)
	}
}
