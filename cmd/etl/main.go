package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-capacity-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/covid-capacity-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/covid-capacity-etl/internal/adapter/kafka"
	"github.com/couchcryptid/covid-capacity-etl/internal/config"
	"github.com/couchcryptid/covid-capacity-etl/internal/observability"
	"github.com/couchcryptid/covid-capacity-etl/internal/pipeline"
	"github.com/couchcryptid/covid-capacity-etl/internal/render"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	places, err := config.LoadPlaces(cfg.PlacesFile)
	if err != nil {
		logger.Error("failed to load places", "file", cfg.PlacesFile, "error", err)
		os.Exit(1)
	}

	source := csvfile.NewSource(cfg.DataDir, logger, metrics)
	builder := pipeline.NewBuilder(source, places.Allowlist(), places.Constants(), logger, metrics)

	// Publish each snapshot to Kafka (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var (
		loader pipeline.SnapshotLoader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		loader = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	refresher := pipeline.NewRefresher(builder, loader, clockwork.NewRealClock(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, refresher, render.NewPanelCache(cfg.PanelCacheSize), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup

	// Build the first snapshot, then hand over to the refresh triggers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := refresher.Start(ctx); err != nil {
			logger.Error("initial build aborted", "error", err)
			return
		}

		if cfg.RefreshInterval > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := refresher.Schedule(ctx, cfg.RefreshInterval); err != nil {
					logger.Error("refresh scheduler error", "error", err)
				}
			}()
		}

		if cfg.WatchDataDir {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := refresher.Watch(ctx, cfg.DataDir, cfg.WatchDebounce); err != nil {
					logger.Error("data directory watcher error", "error", err)
				}
			}()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
