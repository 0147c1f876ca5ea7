package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/scholar/internal/assistant"
	"github.com/haasonsaas/scholar/internal/config"
	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/orchestrator"
	"github.com/haasonsaas/scholar/internal/persona"
	"github.com/haasonsaas/scholar/internal/providers"
)

// app is the wired request pipeline shared by the CLI commands and the server.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics       *observability.Metrics
	tracer        *observability.Tracer
	traceShutdown func(context.Context) error

	registry     *models.Registry
	resolver     *models.Resolver
	dispatcher   *providers.Dispatcher
	orchestrator *orchestrator.Orchestrator
	personas     *persona.Registry
	assistant    *assistant.Assistant
	ledger       ledger.Store
}

type appOptions struct {
	// Registerer receives the metric collectors. Nil disables metrics.
	Registerer prometheus.Registerer

	// Credentials used by the remote classifier. Defaults to the config's.
	Credentials providers.Credentials

	// WithoutLedger skips opening the outcome store.
	WithoutLedger bool
}

// newApp builds every component from cfg. Callers must call close.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger := observability.NewLogger(cfg.LogConfig()).Slog()

	a := &app{cfg: cfg, logger: logger}
	if opts.Registerer != nil && cfg.Observability.Metrics.Enabled {
		a.metrics = observability.NewMetrics(opts.Registerer)
	}
	a.tracer, a.traceShutdown = observability.NewTracer(cfg.TraceConfig())

	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	chains, err := models.NewChainTable(reg, cfg.ChainConfig())
	if err != nil {
		return nil, fmt.Errorf("chains: %w", err)
	}
	a.registry = reg
	a.resolver = models.NewResolver(reg, chains)

	a.dispatcher, err = providers.NewDispatcher(providers.DispatcherConfig{
		Registry:        reg,
		Structured:      providers.NewStructuredBackend(cfg.StructuredConfig()),
		Generic:         providers.NewGenericBackend(cfg.GenericConfig()),
		MaxOutputTokens: cfg.Orchestrator.MaxOutputTokens,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	a.orchestrator, err = orchestrator.New(orchestrator.Config{
		Registry:        reg,
		Resolver:        a.resolver,
		Dispatcher:      a.dispatcher,
		AttemptTimeout:  cfg.Orchestrator.AttemptTimeout,
		RequestDeadline: cfg.Orchestrator.RequestDeadline,
		Logger:          logger,
		Metrics:         a.metrics,
		Tracer:          a.tracer,
	})
	if err != nil {
		return nil, err
	}

	a.personas, err = persona.New(reg)
	if err != nil {
		return nil, err
	}

	creds := opts.Credentials
	if creds == nil {
		creds = cfg.Credentials()
	}
	clsOpts := []intent.Option{
		intent.WithLogger(logger),
		intent.WithTimeout(cfg.Classifier.Timeout),
	}
	if cfg.Classifier.RemoteEnabled() {
		clsOpts = append(clsOpts, intent.WithRemote(assistant.NewCompleter(a.dispatcher, cfg.Classifier.Model, creds)))
	}

	if !opts.WithoutLedger {
		a.ledger, err = openLedger(ctx, cfg, a.metrics, a.tracer)
		if err != nil {
			return nil, err
		}
	}

	a.assistant, err = assistant.New(assistant.Config{
		Classifier:      intent.New(clsOpts...),
		Personas:        a.personas,
		Orchestrator:    a.orchestrator,
		Ledger:          a.ledger,
		MaxOutputTokens: cfg.Orchestrator.MaxOutputTokens,
		Logger:          logger,
		Metrics:         a.metrics,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("failed to close ledger", "error", err)
		}
	}
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

func openLedger(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, tracer *observability.Tracer) (ledger.Store, error) {
	if strings.EqualFold(cfg.Ledger.Driver, "memory") {
		return ledger.NewMemoryStore(cfg.Ledger.MaxRecords), nil
	}
	store, err := ledger.OpenSQL(ctx, cfg.SQLConfig(), ledger.WithMetrics(metrics), ledger.WithTracer(tracer))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

var errMemoryLedger = errors.New("the memory ledger keeps no history between runs; configure ledger.driver sqlite or postgres")
