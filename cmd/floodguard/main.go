// Command floodguard serves flood-risk layers, flood reports and rain-gauge
// stations from the backend selected by DATA_SOURCE.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/floodguard-geodata-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/floodguard-geodata-service/internal/adapter/kafka"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/mapbox"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/photostore"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/pipeline"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := service.OpenBackend(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to open backend", "error", err)
		os.Exit(1)
	}

	var opts []service.Option

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics)
		geocoder, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder", "error", err)
			os.Exit(1)
		}
		opts = append(opts, service.WithGeocoder(geocoder))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var writer *kafkaadapter.Writer
	if cfg.KafkaReportsTopic != "" {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, service.WithPublisher(writer))
		logger.Info("report events enabled", "topic", cfg.KafkaReportsTopic)
	}

	svc := service.New(backend, logger, metrics, opts...)
	deliverer := delivery.New(cfg.StreamThreshold, cfg.StreamChunkSize, logger, metrics)
	photos := photostore.New(cfg.UploadDir, cfg.MaxPhotoBytes)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, deliverer, photos, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start station ingestion when a topic is configured.
	var reader *kafkaadapter.Reader
	pipelineDone := make(chan struct{})
	if cfg.KafkaStationsTopic != "" {
		reader = kafkaadapter.NewReader(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(logger), svc, logger, metrics, cfg.BatchSize)
		go func() {
			defer close(pipelineDone)
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		close(pipelineDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := svc.Close(); err != nil {
		logger.Error("backend close error", "error", err)
	}

	logger.Info("shutdown complete")
}
