// Package postgres is the relational backend: reports and stations are rows in
// a PostGIS database, with positions held as SRID 4326 point geometries.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/geojson"
)

//go:embed schema.sql
var schema string

const (
	reportColumns = `id::text, location, severity, category, description, reported_by,
		confidence, timestamp, verified, status, COALESCE(photo_url, ''), ST_AsGeoJSON(geom)`

	stationColumns = `gauge_id, COALESCE(name, ''), COALESCE(location, ''), COALESCE(mandal_name, ''),
		rainfall_mm, temperature, humidity, date_time, last_updated, status, ST_AsGeoJSON(geom), updated_at`
)

// Store implements the backend contract over a pgx connection pool.
type Store struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
	layer          delivery.FileSource
	logger         *slog.Logger
	metrics        *observability.Metrics
}

// Open connects to DatabaseURL with a pool bounded by PoolMinConns and
// PoolMaxConns and verifies connectivity.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pcfg.MinConns = int32(cfg.PoolMinConns) //nolint:gosec // bounded by config validation
	pcfg.MaxConns = int32(cfg.PoolMaxConns) //nolint:gosec // bounded by config validation

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PoolAcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("postgres pool ready", "min_conns", pcfg.MinConns, "max_conns", pcfg.MaxConns)
	return &Store{
		pool:           pool,
		acquireTimeout: cfg.PoolAcquireTimeout,
		layer:          delivery.FileSource{Path: cfg.FloodRiskPath},
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Migrate creates the extensions, tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, err := conn.Exec(ctx, schema); err != nil {
		return classify(err, "apply schema")
	}
	return nil
}

func (s *Store) Name() string { return config.BackendPostgres }

// ReferenceLayer is served from a file; the database holds no layer data.
func (s *Store) ReferenceLayer() delivery.Source { return s.layer }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) CheckReadiness(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()
	return classify(s.pool.Ping(ctx), "ping database")
}

// acquire takes a connection, waiting at most acquireTimeout. A timeout while
// the caller's context is still live means the pool is exhausted.
func (s *Store) acquire(ctx context.Context) (*pgxpool.Conn, func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	conn, err := s.pool.Acquire(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.metrics.PoolWaitTimeouts.WithLabelValues(config.BackendPostgres).Inc()
			return nil, nil, domain.Wrap(domain.KindBackendUnavailable, err,
				fmt.Sprintf("no connection available within %s", s.acquireTimeout))
		}
		return nil, nil, classify(err, "acquire connection")
	}
	return conn, conn.Release, nil
}

func (s *Store) ListReports(ctx context.Context) ([]domain.FloodReport, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, `SELECT `+reportColumns+` FROM reported_floods ORDER BY timestamp DESC`)
	if err != nil {
		return nil, classify(err, "query reports")
	}
	reports, err := pgx.CollectRows(rows, scanReport)
	if err != nil {
		return nil, classify(err, "scan reports")
	}
	return reports, nil
}

func (s *Store) GetReport(ctx context.Context, id string) (domain.FloodReport, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return domain.FloodReport{}, err
	}
	defer release()

	// Compare as text so a malformed id is a miss rather than a cast error.
	rows, err := conn.Query(ctx, `SELECT `+reportColumns+` FROM reported_floods WHERE id::text = $1`, id)
	if err != nil {
		return domain.FloodReport{}, classify(err, "query report")
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanReport)
	if err != nil {
		return domain.FloodReport{}, classify(err, "report "+id)
	}
	return r, nil
}

func (s *Store) CreateReport(ctx context.Context, r domain.FloodReport) (domain.FloodReport, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return domain.FloodReport{}, err
	}
	defer release()

	var photo *string
	if r.PhotoURL != "" {
		photo = &r.PhotoURL
	}
	err = conn.QueryRow(ctx, `
		INSERT INTO reported_floods (
			id, location, severity, category, description, reported_by,
			confidence, timestamp, verified, status, photo_url, geom
		) VALUES (
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			ST_SetSRID(ST_MakePoint($11, $12), 4326)
		)
		RETURNING id::text`,
		r.Location, string(r.Severity), r.Category, r.Description, r.ReportedBy,
		r.Confidence, r.Timestamp, r.Verified, string(r.Status), photo,
		r.Position.Lon, r.Position.Lat,
	).Scan(&r.ID)
	if err != nil {
		return domain.FloodReport{}, classify(err, "insert report")
	}
	return r, nil
}

func (s *Store) ListStations(ctx context.Context) ([]domain.WeatherStation, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := conn.Query(ctx, `SELECT `+stationColumns+` FROM weather_stations ORDER BY gauge_id`)
	if err != nil {
		return nil, classify(err, "query stations")
	}
	stations, err := pgx.CollectRows(rows, scanStation)
	if err != nil {
		return nil, classify(err, "scan stations")
	}
	return stations, nil
}

func (s *Store) GetStation(ctx context.Context, gaugeID string) (domain.WeatherStation, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	defer release()

	rows, err := conn.Query(ctx, `SELECT `+stationColumns+` FROM weather_stations WHERE gauge_id = $1`, gaugeID)
	if err != nil {
		return domain.WeatherStation{}, classify(err, "query station")
	}
	st, err := pgx.CollectExactlyOneRow(rows, scanStation)
	if err != nil {
		return domain.WeatherStation{}, classify(err, "station "+gaugeID)
	}
	return st, nil
}

// UpsertStation relies on ON CONFLICT so concurrent upserts of one gauge never
// produce duplicate rows.
func (s *Store) UpsertStation(ctx context.Context, st domain.WeatherStation) (domain.WeatherStation, error) {
	conn, release, err := s.acquire(ctx)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	defer release()

	rows, err := conn.Query(ctx, `
		INSERT INTO weather_stations (
			gauge_id, name, location, mandal_name, rainfall_mm,
			temperature, humidity, date_time, last_updated, status, geom
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			ST_SetSRID(ST_MakePoint($11, $12), 4326))
		ON CONFLICT (gauge_id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			mandal_name = EXCLUDED.mandal_name,
			rainfall_mm = EXCLUDED.rainfall_mm,
			temperature = EXCLUDED.temperature,
			humidity = EXCLUDED.humidity,
			date_time = EXCLUDED.date_time,
			last_updated = EXCLUDED.last_updated,
			status = EXCLUDED.status,
			geom = EXCLUDED.geom,
			updated_at = CURRENT_TIMESTAMP
		RETURNING `+stationColumns,
		st.GaugeID, st.Name, st.Location, st.MandalName, st.RainfallMM,
		st.Temperature, st.Humidity, st.DateTime, st.LastUpdated, string(st.Status),
		st.Position.Lon, st.Position.Lat,
	)
	if err != nil {
		return domain.WeatherStation{}, classify(err, "upsert station")
	}
	stored, err := pgx.CollectExactlyOneRow(rows, scanStation)
	if err != nil {
		return domain.WeatherStation{}, classify(err, "upsert station "+st.GaugeID)
	}
	return stored, nil
}

func scanReport(row pgx.CollectableRow) (domain.FloodReport, error) {
	var (
		r                domain.FloodReport
		severity, status string
		geom             string
	)
	if err := row.Scan(&r.ID, &r.Location, &severity, &r.Category, &r.Description, &r.ReportedBy,
		&r.Confidence, &r.Timestamp, &r.Verified, &status, &r.PhotoURL, &geom); err != nil {
		return domain.FloodReport{}, err
	}
	var err error
	if r.Severity, err = domain.ParseSeverity(severity); err != nil {
		return domain.FloodReport{}, storedRowError("report", r.ID, err)
	}
	if r.Status, err = domain.ParseReportStatus(status); err != nil {
		return domain.FloodReport{}, storedRowError("report", r.ID, err)
	}
	if r.Position, err = decodePoint(geom); err != nil {
		return domain.FloodReport{}, storedRowError("report", r.ID, err)
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, nil
}

func scanStation(row pgx.CollectableRow) (domain.WeatherStation, error) {
	var (
		st        domain.WeatherStation
		status    string
		geom      string
		updatedAt time.Time
	)
	if err := row.Scan(&st.GaugeID, &st.Name, &st.Location, &st.MandalName,
		&st.RainfallMM, &st.Temperature, &st.Humidity, &st.DateTime, &st.LastUpdated,
		&status, &geom, &updatedAt); err != nil {
		return domain.WeatherStation{}, err
	}
	var err error
	if st.Status, err = domain.ParseStationStatus(status); err != nil {
		return domain.WeatherStation{}, storedRowError("station", st.GaugeID, err)
	}
	if st.Position, err = decodePoint(geom); err != nil {
		return domain.WeatherStation{}, storedRowError("station", st.GaugeID, err)
	}
	st.UpdatedAt = domain.Time(updatedAt.UTC())
	st.ApplyDefaults()
	return st, nil
}

// decodePoint reads the output of ST_AsGeoJSON.
func decodePoint(data string) (domain.Position, error) {
	g, err := geojson.UnmarshalGeometry([]byte(data))
	if err != nil {
		return domain.Position{}, domain.Wrap(domain.KindInvalidGeometry, err, "stored geometry")
	}
	return domain.PositionFromGeometry(g.Geometry())
}
