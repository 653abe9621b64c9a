// Package main is the entry point for the OCEL pattern-mining workbench.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fidde/oxminer/internal/api"
	"github.com/fidde/oxminer/internal/backend"
	"github.com/fidde/oxminer/internal/config"
	"github.com/fidde/oxminer/internal/metrics"
	"github.com/fidde/oxminer/internal/storage"
	"github.com/fidde/oxminer/internal/validate"
	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(getEnv("OXM_CONFIG", ""))
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("Starting OCEL pattern-mining workbench...", "backend", cfg.Backend.BaseURL)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	opts := []backend.Option{backend.WithLogger(logger), backend.WithMetrics(m)}
	if cfg.ValidatePayloads {
		validator, err := validate.New(logger, func(s validate.Schema) { m.ObserveInvalid(string(s)) })
		if err != nil {
			return fmt.Errorf("compiling payload schemas: %w", err)
		}
		opts = append(opts, backend.WithValidator(validator))
	}
	client, err := backend.New(cfg.Backend, opts...)
	if err != nil {
		return fmt.Errorf("creating backend client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer func() {
		logger.Info("Closing storage...")
		if err := store.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()
	logger.Info("Run history ready", "backend", cfg.Storage.Backend, "mirror", cfg.Storage.Mirror)

	manager := workbench.NewManager(cfg.Workbench, client, store, logger, m)
	go manager.Run(ctx)

	static, err := web.NewStaticFileSystem()
	if err != nil {
		return fmt.Errorf("loading embedded UI: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		Addr:           cfg.Server.Addr,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, api.Deps{
		Workbenches: manager,
		Runs:        store,
		Logger:      logger,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Static:      static,
	})

	// Start pprof server for profiling (separate port)
	if pprofAddr := getEnv("OXM_PPROF_ADDR", ""); pprofAddr != "" {
		go func() {
			logger.Info("Starting pprof server", "url", "http://"+pprofAddr+"/debug/pprof")
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				logger.Error("pprof server error", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting REST API server", "addr", cfg.Server.Addr)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("Received signal, shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
