// Package service is the data access facade used by the HTTP transport and the
// ingest pipeline. It validates input before any backend call, so a rejected
// submission never causes a partial write, and it guarantees that every error
// it returns carries a domain kind.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
)

// Service binds to exactly one Backend for its lifetime.
type Service struct {
	backend   Backend
	geocoder  domain.Geocoder
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures optional collaborators.
type Option func(*Service)

// WithGeocoder enables reverse geocoding of reports submitted without a location.
func WithGeocoder(g domain.Geocoder) Option {
	return func(s *Service) { s.geocoder = g }
}

// WithPublisher enables report-created events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// New creates a Service over backend.
func New(backend Backend, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BackendName returns the identifier of the bound backend.
func (s *Service) BackendName() string {
	return s.backend.Name()
}

// ReferenceLayer returns the source of the flood-risk layer.
func (s *Service) ReferenceLayer() delivery.Source {
	return s.backend.ReferenceLayer()
}

// CheckReadiness reports whether the backend can serve requests.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.backend.CheckReadiness(ctx)
}

// ListReports returns every report whose location matches the filter. An
// empty filter returns all reports.
func (s *Service) ListReports(ctx context.Context, location string) ([]domain.FloodReport, error) {
	start := time.Now()
	reports, err := s.backend.ListReports(ctx)
	if err = s.observe("list_reports", start, err); err != nil {
		return nil, err
	}
	if strings.TrimSpace(location) == "" {
		return reports, nil
	}

	filtered := make([]domain.FloodReport, 0, len(reports))
	for _, r := range reports {
		if r.MatchesLocation(location) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// GetReport fetches one report by ID.
func (s *Service) GetReport(ctx context.Context, id string) (domain.FloodReport, error) {
	if strings.TrimSpace(id) == "" {
		return domain.FloodReport{}, domain.Errorf(domain.KindValidation, "report id is required")
	}
	start := time.Now()
	r, err := s.backend.GetReport(ctx, id)
	return r, s.observe("get_report", start, err)
}

// CreateReport validates and stores a new report. Any client-supplied ID is
// discarded; the backend assigns one.
func (s *Service) CreateReport(ctx context.Context, r domain.FloodReport) (domain.FloodReport, error) {
	r.ID = ""
	r.ApplyDefaults()
	r.Normalize()
	if err := r.Validate(); err != nil {
		return domain.FloodReport{}, err
	}

	r = domain.EnrichWithGeocoding(ctx, r, s.geocoder, s.logger)

	start := time.Now()
	created, err := s.backend.CreateReport(ctx, r)
	if err = s.observe("create_report", start, err); err != nil {
		return domain.FloodReport{}, err
	}

	s.logger.Info("flood report created",
		"id", created.ID,
		"severity", created.Severity,
		"location", created.Location,
	)
	s.publish(ctx, created)
	return created, nil
}

// ListStations returns every station.
func (s *Service) ListStations(ctx context.Context) ([]domain.WeatherStation, error) {
	start := time.Now()
	stations, err := s.backend.ListStations(ctx)
	return stations, s.observe("list_stations", start, err)
}

// GetStation fetches one station by gauge ID.
func (s *Service) GetStation(ctx context.Context, gaugeID string) (domain.WeatherStation, error) {
	if strings.TrimSpace(gaugeID) == "" {
		return domain.WeatherStation{}, domain.Errorf(domain.KindValidation, "gauge_id is required")
	}
	start := time.Now()
	st, err := s.backend.GetStation(ctx, gaugeID)
	return st, s.observe("get_station", start, err)
}

// UpsertStation validates and stores a station, replacing any existing record
// with the same gauge ID.
func (s *Service) UpsertStation(ctx context.Context, st domain.WeatherStation) (domain.WeatherStation, error) {
	st.GaugeID = strings.TrimSpace(st.GaugeID)
	st.ApplyDefaults()
	st.Normalize()
	if err := st.Validate(); err != nil {
		return domain.WeatherStation{}, err
	}

	start := time.Now()
	stored, err := s.backend.UpsertStation(ctx, st)
	if err = s.observe("upsert_station", start, err); err != nil {
		return domain.WeatherStation{}, err
	}
	return stored, nil
}

// LoadBatch upserts each station in order and stops at the first failure.
// Upserts are idempotent, so the caller may retry the whole batch.
func (s *Service) LoadBatch(ctx context.Context, stations []domain.WeatherStation) error {
	for i := range stations {
		if _, err := s.UpsertStation(ctx, stations[i]); err != nil {
			return fmt.Errorf("upsert station %s: %w", stations[i].GaugeID, err)
		}
	}
	return nil
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}

// observe records metrics for a backend call and classifies any error the
// driver left unclassified as a backend outage.
func (s *Service) observe(operation string, start time.Time, err error) error {
	backend := s.backend.Name()
	s.metrics.BackendDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())

	if err == nil {
		s.metrics.BackendOperations.WithLabelValues(backend, operation, "ok").Inc()
		return nil
	}

	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.KindBackendUnavailable
		err = domain.Wrap(kind, err, operation+" failed")
	}
	s.metrics.BackendOperations.WithLabelValues(backend, operation, string(kind)).Inc()
	if kind == domain.KindBackendUnavailable {
		s.logger.Error("backend operation failed", "operation", operation, "kind", kind, "error", err)
	}
	return err
}

func (s *Service) publish(ctx context.Context, r domain.FloodReport) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReportCreated(ctx, domain.NewReportCreated(r, s.backend.Name())); err != nil {
		s.metrics.EventsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("publish report event failed", "id", r.ID, "error", err)
		return
	}
	s.metrics.EventsPublished.WithLabelValues("success").Inc()
}
