package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hackcbs/vectorgate/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ensure the index, then start the HTTP API server",
	Long: `Ensure the configured Pinecone index exists and is ready, then start
the HTTP server on PORT (default 8000). The server is never started when the
index cannot be ensured. It shuts down cleanly on SIGTERM or SIGINT.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.close(shutCtx)
	}()

	handler := app.router.Handler()
	return app.orchestrator.Launch(ctx, cfg.Server.Port, func(ctx context.Context, port int) error {
		scfg := cfg.Server
		scfg.Port = port
		return api.Serve(ctx, scfg, handler)
	})
}
