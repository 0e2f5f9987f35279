package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hackcbs/vectorgate/internal/orchestrator"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Ensure the Pinecone index once and exit",
	Long: `Bootstrap lists the Pinecone indexes, creates the configured index if
it is missing and waits for it to become ready.

The command runs once, prints a JSON result to stdout, and exits 0 on
success or with the failure's exit code otherwise.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.close(shutCtx)
	}()

	slog.InfoContext(ctx, "starting bootstrap")

	result, err := app.orchestrator.RunBootstrap(ctx)
	if result != nil {
		printBootstrapResult(result)
	}
	if err != nil {
		if result == nil {
			printResult(orchestrator.StatusError, err.Error())
		}
		return err
	}

	slog.InfoContext(ctx, "bootstrap completed successfully")
	return nil
}

func printBootstrapResult(result *orchestrator.BootstrapResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}

func printResult(status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", status)
	}
}
