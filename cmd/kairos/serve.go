package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/LavishGent/kairos/pkg/kairos"
)

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose metrics and health over HTTP",
	Long: `Start the data plane and serve:
  /metrics  Prometheus metrics
  /healthz  system health as JSON (503 when any breaker is open)
  /stats    cache statistics and performance analysis as JSON`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to metrics.prometheus.listenAddr)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for graceful shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Prometheus.Enabled = true

	addr := serveAddr
	if addr == "" {
		addr = cfg.Metrics.Prometheus.ListenAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sys, err := kairos.NewFromConfig(cfg, kairos.WithPrometheusRegistry(reg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sys.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newMux(sys, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			_ = sys.Shutdown(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()

	return errors.Join(server.Shutdown(shutdownCtx), sys.Shutdown(shutdownCtx))
}

func newMux(sys *kairos.System, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys.PublishNow()
		metrics.ServeHTTP(w, r)
	}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		health := sys.SystemHealth()
		status := http.StatusOK
		if health.Overall == kairos.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Caches   map[string]kairos.CacheStats `json:"caches"`
			Analysis kairos.PerformanceAnalysis   `json:"analysis"`
			Fetches  kairos.FetchStats            `json:"fetches"`
		}{
			Caches:   sys.GetAllStats(),
			Analysis: sys.AnalyzePerformance(),
			Fetches:  sys.FetchStats(),
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
