// Command engined is the long-running worker daemon: it starts the
// cron-driven session/fund scheduler (internal/scheduler) and serves
// Prometheus metrics, then blocks until terminated. Grounded in the
// teacher's cmd/appserver main (config load, build the storage-backed
// application, start it, wait on SIGINT/SIGTERM, shut down with a
// bounded timeout) — here there is no HTTP API to serve, only the
// metrics exporter and the cron loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-network/mlm-compensation-engine/internal/app"
	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "engined: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.NewFromEnv("engined")

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer application.Close()

	sched, err := scheduler.New(application.Binary, application.Fund, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	metricsAddr := metricsListenAddr()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := application.Store.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()
	log.WithFields(map[string]interface{}{"addr": metricsAddr, "timezone": cfg.Timezone}).Info("engined started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
	case err := <-serveErrCh:
		log.WithError(err).Error("metrics server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func metricsListenAddr() string {
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		return addr
	}
	return ":9090"
}
