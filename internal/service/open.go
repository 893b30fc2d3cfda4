package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/awsstore"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/gcs"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/localfile"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/postgres"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
)

// OpenBackend constructs the driver named by cfg.Backend. The choice is made
// once at startup; there is no per-request dispatch.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return localfile.New(cfg, logger), nil

	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrate postgres schema: %w", err)
		}
		return store, nil

	case config.BackendAWS:
		var opts []awsstore.Option
		if cfg.ObjectStore == config.ObjectStoreGCS {
			src, err := gcs.Open(ctx, cfg.GCSBucket, cfg.GCSFloodRiskObject)
			if err != nil {
				return nil, fmt.Errorf("open gcs reference layer: %w", err)
			}
			opts = append(opts, awsstore.WithReferenceLayer(src))
		}
		store, err := awsstore.Open(ctx, cfg, logger, metrics, opts...)
		if err != nil {
			return nil, fmt.Errorf("open aws backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
