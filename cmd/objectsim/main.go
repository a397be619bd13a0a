package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"objectsim/pkg/api/rest"
	"objectsim/pkg/config"
	"objectsim/pkg/gateway"
	"objectsim/pkg/obs/metrics"
	"objectsim/pkg/obs/tracing"
	"objectsim/pkg/storage"
)

var version = "0.0.1-dev"
var ready atomic.Bool

func main() {
	// Load config from OBJECTSIM_CONFIG or ./config.yaml; defaults otherwise.
	cfgPath := os.Getenv("OBJECTSIM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Ensure the data directory exists.
	if err := config.EnsureDirs(cfg); err != nil {
		slog.Error("failed to ensure data dir", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize tracing (OpenTelemetry)
	traceShutdown, terr := tracing.Init(context.Background(), tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if terr != nil {
		slog.Warn("tracing init failed", slog.String("error", terr.Error()))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Metrics: Prometheus /metrics endpoint and HTTP instrumentation
	m := metrics.New()
	mux.Handle("/metrics", m.Handler())
	// Register storage-level metrics on shared registry
	sm := metrics.NewStorageMetrics(m.Registry())

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		slog.Error("init storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	// Wire storage metrics observer
	store.SetObserver(sm)

	gw := gateway.NewWithLimits(store, gateway.Limits{
		MaxValueBytes: cfg.Limits.MaxValueBytes,
	})
	api := rest.New(gw)

	handler := api.Handler()
	// Tracing middleware
	handler = tracing.Middleware(handler, cfg.Tracing.KeyHashEnabled)
	// Instrument the API with HTTP metrics
	handler = m.Middleware(handler)
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		ready.Store(true)
		slog.Info("objectsim listening",
			slog.String("version", version),
			slog.String("addr", cfg.Address),
			slog.String("dataDir", store.Root()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ready.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
	}
	// Shutdown tracing provider
	if err := traceShutdown(ctx); err != nil {
		slog.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	slog.Info("objectsim stopped")
}
