package main

import (
	"os"
	"os/signal"
	"syscall"

	"speechcoach/pkg/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local control API and event feed",
	Long: `Serve the HTTP control API (session start/stop/abort, history, analyze),
the WebSocket event feed at /ws, /health and Prometheus metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, logger, app.Options{})
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close cleanly")
			}
		}()

		logger.WithField("addr", cfg.HTTP.Addr()).Info("speechcoach is ready")
		return a.Serve(ctx)
	},
}
