package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	v1 "demandinsights/api/v1"
	"demandinsights/internal/config"
	exportapp "demandinsights/internal/export/application"
	insightsapp "demandinsights/internal/insights/application"
	sharedinfra "demandinsights/internal/shared/infrastructure"
)

func main() {
	configPath := flag.String("config", config.Getenv("INSIGHTS_CONFIG", ""), "fichier YAML de configuration (optionnel)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("❌ Erreur configuration:", err)
	}

	logger, err := sharedinfra.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("❌ Erreur logger:", err)
	}
	defer logger.Sync()

	mux, err := newMux(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("stopped")
}

// newMux assemble le moteur, l'exporteur et les routes HTTP
// pprof reste disponible sur DefaultServeMux via /debug/pprof/
func newMux(cfg config.Config, logger *zap.Logger) (*http.ServeMux, error) {
	registry, err := sharedinfra.NewModelRegistry(cfg.RegistryCapacity, logger.Named("registry"))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	v1.NewHandlers(
		insightsapp.NewEngine(cfg, registry, logger),
		exportapp.NewResultExporter(cfg, logger.Named("export")),
		logger.Named("http"),
	).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)
	return mux, nil
}
