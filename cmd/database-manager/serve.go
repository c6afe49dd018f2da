package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/dbmanager/internal/api"
	"github.com/edvin/dbmanager/internal/metrics"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the lifecycle API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := newApp(ctx, "serve")
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.logger

			httpServer := &http.Server{
				Addr:         a.cfg.HTTPListenAddr,
				Handler:      api.NewServer(logger, a.orch, a.reg),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 5 * time.Minute,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				logger.Info().Str("addr", a.cfg.HTTPListenAddr).Msg("starting database manager API server")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			var metricsServer *http.Server
			if a.cfg.MetricsListenAddr != "" {
				metricsServer = metrics.NewServer(a.cfg.MetricsListenAddr, a.reg)
				go func() {
					logger.Info().Str("addr", a.cfg.MetricsListenAddr).Msg("starting metrics server")
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error().Err(err).Msg("metrics server failed")
					}
				}()
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			logger.Info().Msg("shutting down server")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()
			if metricsServer != nil {
				metricsServer.Shutdown(shutdownCtx)
			}
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}
