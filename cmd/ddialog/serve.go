package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/ddialog/internal/cli"
	httpAdapter "github.com/aretw0/ddialog/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP bot endpoint",
	Long:  `Serves POST /api/messages, the conversation API, /healthz and /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, cfg, logger, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		opts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
		if rt.Metrics != nil {
			opts = append(opts, httpAdapter.WithMetricsHandler(rt.Metrics.Handler()))
		}
		if rt.Masker != nil {
			opts = append(opts, httpAdapter.WithProgressView(rt.Masker.Apply))
		}

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: httpAdapter.NewHandler(rt.Engine, opts...),
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting server", "addr", srv.Addr, "dialogs", cfg.Dialogs)
			serverErrors <- srv.ListenAndServe()
		}()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err

		case <-ctx.Done():
			logger.Info("Shutting down", "signal", ctx.Signal())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", cfg.HTTP.ShutdownTimeout, "err", err)
				return srv.Close()
			}
			logger.Info("Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}
