package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/practicechat/internal/app"
	"github.com/vovakirdan/practicechat/internal/config"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Str("relay", cfg.Relay.Backend).Msg("starting practicechat server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&overrides.Relay.Backend, "relay", "", "relay backend (local, nats, redis)")
	return cmd
}
