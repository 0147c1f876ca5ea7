package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/scholar/internal/auth"
	"github.com/haasonsaas/scholar/internal/config"
	"github.com/haasonsaas/scholar/internal/ratelimit"
	"github.com/haasonsaas/scholar/internal/server"
)

type serveOptions struct {
	debug   bool
	address string
	watch   bool
}

// runServe wires the pipeline behind the HTTP server and blocks until a
// shutdown signal arrives.
func runServe(cmd *cobra.Command, load configLoader, opts serveOptions) error {
	cfg, path, err := load()
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	live := config.NewLive(cfg)
	a, err := newApp(ctx, cfg, appOptions{Registerer: registry, Credentials: live})
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	slog.SetDefault(a.logger)

	a.logger.Info("starting scholar",
		"version", version,
		"commit", commit,
		"config", path,
		"address", cfg.Server.Address,
		"ledger", cfg.Ledger.Driver,
		"models", a.registry.Len(),
	)

	if opts.watch && path != "" {
		watcher, err := config.Watch(ctx, path, live, a.logger)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer watcher.Close()
	}

	srv, err := server.New(server.Config{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		Assistant:         a.assistant,
		Registry:          a.registry,
		Resolver:          a.resolver,
		Settings:          live,
		Ledger:            a.ledger,
		Auth:              auth.NewService(cfg.AuthConfig()),
		RateLimiter:       ratelimit.NewLimiter(cfg.Server.RateLimit),
		Logger:            a.logger,
		Metrics:           a.metrics,
		Tracer:            a.tracer,
		Gatherer:          registry,
	})
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	a.logger.Info("scholar stopped")
	return nil
}
