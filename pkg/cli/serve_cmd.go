package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bronze-ingest/internal/api"
	"bronze-ingest/internal/app"
	"bronze-ingest/internal/middleware"
	"bronze-ingest/internal/service/ingestion"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run batches on the configured schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			a, err := app.New(ctx, app.Deps{Cfg: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			if cfg.Schedule != "" {
				sched := ingestion.NewScheduler(a.Service, cfg.Schedule, logger.With("component", "scheduler"))
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			router := api.NewRouter(api.NewHandler(a.Service), api.Options{
				Gatherer: a.Metrics,
				Trigger:  middleware.ThrottleConfig{RequestsPerSecond: cfg.TriggerRPS, Burst: 1},
				Logger:   logger.With("component", "http"),
			})
			return serveHTTP(ctx, &http.Server{
				Addr:              cfg.ListenAddr,
				Handler:           router,
				ReadHeaderTimeout: 15 * time.Second,
				IdleTimeout:       120 * time.Second,
			}, logger)
		},
	}
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("bronze API listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
