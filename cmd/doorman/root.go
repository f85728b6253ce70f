// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/doorman/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFiles   []string
)

// NewRootCmd creates the root command for the doorman CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doorman",
		Short: "Doorman - browser sign-in with remembered and tab sessions",
		Long: `Doorman serves login, signup and password reset pages backed by a
user directory, keeping each browser's session in a durable tier
("remember me") or an ephemeral tier that ends with the browser.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/doorman/config.yaml)")
	cmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default: ./.env)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewAccountsCmd())

	return cmd
}

// loadConfig reads dotenv files, the config file, the environment and the
// flags of cmd, in increasing precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	return config.Load(cmd.Flags(), configFile)
}
