package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/intake/internal/cli"
	httpAdapter "github.com/aretw0/intake/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the conversation API (/start, /turn, /reset, /sessions), the turn event
stream (/events), the voice webhook (/voice) and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, debug := globalFlags(cmd)
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		appOpts := []cli.AppOption{cli.WithStreams()}
		if debug {
			appOpts = append(appOpts, cli.WithDebugHooks())
		}
		app, err := cli.NewApp(cfg, logger, appOpts...)
		if err != nil {
			return err
		}

		handler := httpAdapter.NewHandler(app.Engine,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithStreams(app.Streams),
			httpAdapter.WithMetrics(cfg.Server.MetricsPath, app.Metrics.Handler()),
			httpAdapter.WithCallStatusHook(app.EndCall),
		)
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting intake server", "addr", srv.Addr, "metrics", cfg.Server.MetricsPath)
			serverErrors <- srv.ListenAndServe()
		}()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}
		case <-sigCtx.Done():
			logger.Info("Shutdown started", "signal", sigCtx.Signal())
		}

		// Give outstanding requests and queued telemetry a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "err", err)
			_ = srv.Close()
		}
		if err := app.Close(ctx); err != nil {
			logger.Warn("Telemetry flush incomplete", "err", err)
		}
		logger.Info("intake server stopped")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
}
