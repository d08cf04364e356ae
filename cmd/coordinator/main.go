// Command coordinator runs the workflow coordinator: the task queue
// manager, result cache, quality assessor, resource allocator, and
// autoscaling control plane, serving Prometheus metrics and a health
// endpoint over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AMD-AGI/Primus-SaFE/coordinator/internal/app"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/bus"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/config"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/kvstore"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/logger"
	"github.com/AMD-AGI/Primus-SaFE/coordinator/pkg/orchestrator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("coordinator: load config: %v", err)
	}

	if cfg.LogLevel != "" {
		if err := logger.InitGlobalLogger(cfg.LogLevel, true); err != nil {
			logger.Warnf("coordinator: invalid log level %q: %v", cfg.LogLevel, err)
		}
	}

	store, err := kvstore.NewRedisStore(cfg.StoreURL)
	if err != nil {
		logger.Fatalf("coordinator: connect store: %v", err)
	}

	orch, err := orchestrator.NewK8sOrchestrator()
	if err != nil {
		logger.Fatalf("coordinator: build orchestrator client: %v", err)
	}

	msgBus, err := bus.NewFromURL(cfg.StoreURL)
	if err != nil {
		logger.Fatalf("coordinator: connect message bus: %v", err)
	}

	a := app.New(cfg, store, orch, msgBus)

	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	a.RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.Server.GetMetricsBindAddress(),
		Handler: router,
	}

	go func() {
		logger.Infof("coordinator: serving metrics/health on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("coordinator: http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("coordinator: shutting down")
	cancel()
	a.Stop()
	if err := msgBus.Close(); err != nil {
		logger.Warnf("coordinator: close message bus: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
