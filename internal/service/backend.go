package service

import (
	"context"

	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// Backend is the storage contract every driver implements. Drivers own the
// mapping between entities and their native storage shape and return only
// domain-classified errors.
type Backend interface {
	// Name is the configured backend identifier, reported by /health.
	Name() string

	ListReports(ctx context.Context) ([]domain.FloodReport, error)
	GetReport(ctx context.Context, id string) (domain.FloodReport, error)
	// CreateReport stores a new report and returns it with its assigned ID.
	CreateReport(ctx context.Context, r domain.FloodReport) (domain.FloodReport, error)

	ListStations(ctx context.Context) ([]domain.WeatherStation, error)
	GetStation(ctx context.Context, gaugeID string) (domain.WeatherStation, error)
	// UpsertStation inserts or replaces the station keyed by GaugeID atomically
	// and returns the stored record with UpdatedAt set.
	UpsertStation(ctx context.Context, s domain.WeatherStation) (domain.WeatherStation, error)

	// ReferenceLayer locates the read-only flood-risk layer.
	ReferenceLayer() delivery.Source

	CheckReadiness(ctx context.Context) error
	Close() error
}

// Publisher announces stored reports to downstream consumers.
type Publisher interface {
	PublishReportCreated(ctx context.Context, event domain.ReportCreated) error
}
