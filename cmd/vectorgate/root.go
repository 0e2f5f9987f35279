package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hackcbs/vectorgate/internal/config"
	"hackcbs/vectorgate/internal/startup"
	"hackcbs/vectorgate/internal/telemetry"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "vectorgate",
	Short: "Ensure the Pinecone index exists, then serve the API",
	Long: `vectorgate loads its configuration from the environment (and an
optional .env file), makes sure the configured Pinecone index exists, and
then starts the HTTP server. Running without a subcommand is the same as
"vectorgate serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a dotenv file; missing file is ignored")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error); when set, overrides telemetry.log_level and the debug default of server.debug")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel)

		if err := config.LoadDotEnv(envFile); err != nil {
			return startup.Wrap(startup.KindConfig, "loading env file", err)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return startup.Wrap(startup.KindConfig, "loading config", err)
		}

		cfg.Telemetry.LogLevel = resolveLogLevel(cmd.Flags().Changed("log-level"), logLevel, cfg)
		initLogger(cfg.Telemetry.LogLevel)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		app, err = buildAppContext(ctx, cfg)
		if err != nil {
			return err
		}

		return nil
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// Execute is the entry point called by main. Failures are logged with their
// kind and the process exits with that kind's code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("app didn't launch",
			"kind", startup.KindOf(err).String(),
			"err", err,
		)
		os.Exit(startup.ExitCode(err))
	}
}

// resolveLogLevel picks the effective level: an explicit --log-level wins,
// then server.debug forces debug, then telemetry.log_level.
func resolveLogLevel(flagSet bool, flagLevel string, cfg *config.Config) string {
	switch {
	case flagSet:
		return flagLevel
	case cfg.Server.Debug:
		return "debug"
	default:
		return cfg.Telemetry.LogLevel
	}
}

func initLogger(level string) {
	slog.SetDefault(telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(level)))
}
