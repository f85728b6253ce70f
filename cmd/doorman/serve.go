// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/doorman/internal/auth"
	"github.com/holomush/doorman/internal/config"
	"github.com/holomush/doorman/internal/logging"
	"github.com/holomush/doorman/internal/observability"
	"github.com/holomush/doorman/internal/web"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the browser-facing web server and, when metrics.addr is set,
the observability server with /metrics, /healthz/liveness and
/healthz/readiness.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg)
		},
	}
}

// setupLogging installs the default logger described by cfg.
func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.SetDefault("doorman", version, cfg.Log.Format, level), nil
}

// cookieSecret returns the configured secret, or a random one when unset.
func cookieSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.Session.CookieSecret != "" {
		return []byte(cfg.Session.CookieSecret), nil
	}
	secret := make([]byte, config.MinCookieSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("COOKIE_SECRET_FAILED").Wrap(err)
	}
	logger.Warn("session.cookie_secret is not set; using a random secret, browsers are signed out on restart")
	return secret, nil
}

// newDirectory builds the user directory over the durable backend.
func newDirectory(cfg *config.Config, b *backends, logger *slog.Logger) (*auth.Directory, error) {
	opts := []auth.DirectoryOption{auth.WithDirectoryLogger(logger)}
	if !cfg.Auth.SeedDemoAccounts {
		opts = append(opts, auth.WithoutDemoSeed())
	}
	return auth.NewDirectory(b.durable, opts...)
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	logger.Info("starting doorman",
		"http_addr", cfg.HTTP.Addr,
		"durable", cfg.Storage.Durable,
		"ephemeral", cfg.Storage.Ephemeral,
	)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			logger.Warn("error closing storage", "error", closeErr)
		}
	}()

	dir, err := newDirectory(cfg, b, logger)
	if err != nil {
		return err
	}
	if err := dir.Load(ctx); err != nil {
		return fmt.Errorf("failed to load user directory: %w", err)
	}

	guard, err := auth.NewPageGuard(cfg.Auth.ProtectedPages...)
	if err != nil {
		return err
	}
	secret, err := cookieSecret(cfg, logger)
	if err != nil {
		return err
	}
	cookies, err := web.NewCookies(secret, cfg.Session.RememberFor, cfg.Session.SecureCookies)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer *observability.Server
	webOpts := []web.Option{
		web.WithLogger(logger),
		web.WithManagerOptions(
			auth.WithDelay(auth.FixedDelay(cfg.Auth.SimulatedLatency)),
			auth.WithPageGuard(guard),
			auth.WithResetLedger(
				auth.NewResetLedger(b.durable, cfg.Auth.ResetTokenTTL),
				auth.LogResetDelivery{Logger: logger, BaseURL: "http://" + cfg.HTTP.Addr},
			),
		),
	}
	if cfg.HTTP.StaticDir != "" {
		webOpts = append(webOpts, web.WithStaticDir(cfg.HTTP.StaticDir))
	}
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, func() bool { return ctx.Err() == nil })
		webOpts = append(webOpts, web.WithMetrics(obsServer.Metrics()))
	}

	webServer, err := web.NewServer(cfg.HTTP.Addr, dir, web.Backends{Durable: b.durable, Ephemeral: b.ephemeral}, cookies, webOpts...)
	if err != nil {
		return err
	}
	webErrCh, err := webServer.Start()
	if err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(webServer.Stop, "web")
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	cmd.Printf("Doorman listening on http://%s\n", webServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down...")

	stopServer(webServer.Stop, "web")
	if obsServer != nil {
		stopServer(obsServer.Stop, "observability")
	}

	logger.Info("shutdown complete")
	return nil
}

func stopServer(stop func(context.Context) error, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
