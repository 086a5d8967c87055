package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/congo-pay/safetext/internal/app"
	"github.com/congo-pay/safetext/internal/config"
	"github.com/congo-pay/safetext/internal/logging"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and the inspection API",
		Long: `Run the message poller and the HTTP inspection API until SIGINT or SIGTERM.

Migrations are applied on startup when DATABASE_URL is set. Without it the
relay keeps users in memory, which is only allowed in development.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			logger := logging.New(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			relay, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return WrapExitError(ExitFailure, "startup failed", err)
			}
			defer relay.Close()

			logger.Info("relay starting", "env", cfg.AppEnv, "addr", cfg.Address(), "relayer", relay.Chain.Relayer().Hex())
			if err := relay.Run(ctx); err != nil {
				return err
			}
			logger.Info("relay exited cleanly")
			return nil
		},
	}
}

// commandContext returns cmd's context, defaulting to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
