package main

import (
	"context"
	"log/slog"

	"hackcbs/vectorgate/internal/api"
	"hackcbs/vectorgate/internal/clients"
	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/orchestrator"
	"hackcbs/vectorgate/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	locker       *clients.RedisLocker
	orchestrator *orchestrator.Orchestrator
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates one circuit breaker per client
//  3. Creates the Pinecone client and the optional Redis lock and NATS announcer
//  4. Creates the orchestrator
//  5. Creates the HTTP router
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// When OTLPEndpoint is empty telemetry is disabled entirely.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Debug("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, cfg.Telemetry)
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	// One circuit breaker per client so each dependency trips independently.
	pinecone, err := clients.NewPineconeClient(cfg.Pinecone, cfg.Bootstrap.RetryBackoff, clients.NewCircuitBreaker("pinecone"))
	if err != nil {
		return nil, err
	}

	var lock orchestrator.Locker
	if cfg.Bootstrap.Redis.Enabled() {
		app.locker = clients.NewRedisLocker(cfg.Bootstrap, clients.NewCircuitBreaker("redis"))
		lock = app.locker
	}

	var events orchestrator.Announcer
	if cfg.Bootstrap.NATS.Enabled() {
		events = clients.NewNATSAnnouncer(cfg.Bootstrap.NATS, clients.NewCircuitBreaker("nats"))
	}

	app.orchestrator = orchestrator.New(pinecone, lock, events, cfg.Bootstrap.Timeout)
	app.router = api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName, cfg.Server.Debug)

	return app, nil
}

// close releases long-lived resources. Safe to call on a partially built app.
func (a *AppContext) close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.locker != nil {
		if err := a.locker.Close(); err != nil {
			slog.Warn("redis close error", "err", err)
		}
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
	}
}
