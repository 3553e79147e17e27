package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckgrid/duckgrid/internal/api"
	"github.com/duckgrid/duckgrid/internal/auth"
	"github.com/duckgrid/duckgrid/internal/config"
	"github.com/duckgrid/duckgrid/internal/dispatch"
	"github.com/duckgrid/duckgrid/internal/observability"
	s3store "github.com/duckgrid/duckgrid/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("duckgrid-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dispatcher, analytics := dispatch.NewFromConfig(cfg, logger)
	if cfg.DuckDB.Prewarm {
		warmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := analytics.Warmup(warmCtx); err != nil {
			// Sessions retry the install on first use.
			logger.Warn("duckdb extension warmup failed", slog.Any("error", err))
		}
		cancel()
	}

	deps := api.Dependencies{
		Logger:           logger,
		Reader:           dispatcher,
		DependencyTimout: time.Second,
	}
	checks := []api.ReadinessCheck{api.CheckObjectStoreConfig(cfg)}
	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(s3store.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.ObjectStore = objectStore
		checks = append(checks, objectStore.CheckBucket)
	}
	deps.Readiness = api.CombineReadinessChecks(checks...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("data_root", cfg.Reader.DataRoot),
			slog.Bool("object_store", cfg.ObjectStore.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
