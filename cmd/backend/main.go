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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"

	audioimpl "github.com/scribelab/scribed/external/audio"
	configloader "github.com/scribelab/scribed/external/config"
	dispatchimpl "github.com/scribelab/scribed/external/dispatch"
	"github.com/scribelab/scribed/external/gateway"
	inferenceimpl "github.com/scribelab/scribed/external/inference"
	queueimpl "github.com/scribelab/scribed/external/queue"
	repositoryimpl "github.com/scribelab/scribed/external/repository"
	transcriberimpl "github.com/scribelab/scribed/external/transcriber"
	"github.com/scribelab/scribed/internal/batch"
	"github.com/scribelab/scribed/internal/config"
	"github.com/scribelab/scribed/internal/dispatch"
	"github.com/scribelab/scribed/internal/ingest"
	"github.com/scribelab/scribed/internal/session"
	"github.com/scribelab/scribed/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	inferenceimpl.RegisterDI(injector)
	queueimpl.RegisterDI(injector)
	dispatchimpl.RegisterDI(injector)
	worker.RegisterDI(injector)
	session.RegisterDI(injector)
	batch.RegisterDI(injector)
	ingest.RegisterDI(injector)
	gateway.RegisterDI(injector)

	return injector
}

func run(cfg *config.Config, injector do.Injector) {
	registry := do.MustInvoke[*session.Registry](injector)
	scheduler := do.MustInvoke[*batch.Scheduler](injector)
	dispatcher := do.MustInvoke[*dispatch.Dispatcher](injector)
	pool := do.MustInvoke[*worker.Pool](injector)
	// Resolving the ingest service wires the scheduler hooks and the registry
	// finalizer before any traffic arrives.
	do.MustInvoke[*ingest.Service](injector)
	server := do.MustInvoke[*gateway.Server](injector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go registry.RunSweeper(ctx)
	go scheduler.RunTicker(ctx, registry)
	go dispatcher.RunReconciler(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("startup: gateway listening", "addr", cfg.ListenAddr)
		serveErr <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("gateway serve failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("gateway shutdown failed", "error", err)
	}
	// Final-flush every live session before the workers stop.
	stopped := registry.StopAll(shutdownCtx)
	slog.Info("sessions flushed", "count", stopped)
	cancel()
	pool.Shutdown(shutdownCtx)
	slog.Info("shutdown complete")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("startup: metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics serve failed", "error", err)
	}
}
