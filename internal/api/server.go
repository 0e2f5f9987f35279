package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/startup"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine *gin.Engine
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery: panic → 500
//  2. Tracing: trace context per request
//  3. RequestLogger: structured request/response logging
//
// debug selects Gin's debug mode, which logs route registration.
func NewRouter(o orchestratorService, serviceName string, debug bool) *Router {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(Recovery(slog.Default()))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(slog.Default()))

	h := &Handler{orchestrator: o}

	v1 := engine.Group("/api/v1")
	v1.POST("/bootstrap", h.Bootstrap)
	v1.GET("/index", h.Index)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Serve binds cfg.Port and serves h until ctx is cancelled, then shuts the
// server down gracefully within cfg.ShutdownTimeout. A bind failure is
// returned as a server-startup error without serving anything.
func Serve(ctx context.Context, cfg config.ServerConfig, h http.Handler) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return startup.Wrap(startup.KindServerStartup, "binding "+addr, err)
	}
	return serveListener(ctx, ln, cfg, h)
}

func serveListener(ctx context.Context, ln net.Listener, cfg config.ServerConfig, h http.Handler) error {
	srv := &http.Server{
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			return startup.Wrap(startup.KindServerStartup, "serving", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}
