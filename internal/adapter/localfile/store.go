// Package localfile is the development backend: each entity kind lives in one
// GeoJSON FeatureCollection file that is rewritten atomically on every change.
package localfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/delivery"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

const (
	lockTimeout    = 10 * time.Second
	lockRetryDelay = 20 * time.Millisecond
)

// Store implements the backend contract over local files. Concurrent readers
// are allowed; writers to the same file are serialised within the process by
// a mutex and across processes by an advisory lock on a sibling ".lock" file.
type Store struct {
	reportsPath  string
	stationsPath string
	layer        delivery.FileSource
	logger       *slog.Logger

	reportsMu  sync.RWMutex
	stationsMu sync.RWMutex
}

// New creates a Store. Missing data files are treated as empty collections
// and created on the first write.
func New(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		reportsPath:  cfg.ReportsPath,
		stationsPath: cfg.StationsPath,
		layer:        delivery.FileSource{Path: cfg.FloodRiskPath},
		logger:       logger,
	}
}

func (s *Store) Name() string { return config.BackendLocal }

func (s *Store) ReferenceLayer() delivery.Source { return s.layer }

func (s *Store) Close() error { return nil }

// CheckReadiness verifies that the directories holding the data files exist.
func (s *Store) CheckReadiness(_ context.Context) error {
	for _, p := range []string{s.reportsPath, s.stationsPath} {
		dir := filepath.Dir(p)
		fi, err := os.Stat(dir)
		if err != nil {
			return domain.Wrap(domain.KindBackendUnavailable, err, "data directory unavailable")
		}
		if !fi.IsDir() {
			return domain.Errorf(domain.KindBackendUnavailable, "%s is not a directory", dir)
		}
	}
	return nil
}

func (s *Store) ListReports(_ context.Context) ([]domain.FloodReport, error) {
	s.reportsMu.RLock()
	defer s.reportsMu.RUnlock()
	return s.readReports()
}

func (s *Store) GetReport(_ context.Context, id string) (domain.FloodReport, error) {
	s.reportsMu.RLock()
	defer s.reportsMu.RUnlock()

	reports, err := s.readReports()
	if err != nil {
		return domain.FloodReport{}, err
	}
	for _, r := range reports {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.FloodReport{}, domain.Errorf(domain.KindNotFound, "report %s not found", id)
}

// CreateReport appends the report to the stored features, leaving every
// existing feature as it was.
func (s *Store) CreateReport(ctx context.Context, r domain.FloodReport) (domain.FloodReport, error) {
	s.reportsMu.Lock()
	defer s.reportsMu.Unlock()
	unlock, err := lockFile(ctx, s.reportsPath)
	if err != nil {
		return domain.FloodReport{}, err
	}
	defer unlock()

	fc, err := readRaw(s.reportsPath)
	if err != nil {
		return domain.FloodReport{}, err
	}
	r.ID = uuid.NewString()
	raw, err := json.Marshal(domain.ToFeature(r))
	if err != nil {
		return domain.FloodReport{}, domain.Wrap(domain.KindBackendUnavailable, err, "encode report")
	}
	fc.features = append(fc.features, raw)

	if err := fc.write(s.reportsPath); err != nil {
		return domain.FloodReport{}, err
	}
	return r, nil
}

func (s *Store) ListStations(_ context.Context) ([]domain.WeatherStation, error) {
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()
	return s.readStations()
}

func (s *Store) GetStation(_ context.Context, gaugeID string) (domain.WeatherStation, error) {
	s.stationsMu.RLock()
	defer s.stationsMu.RUnlock()

	stations, err := s.readStations()
	if err != nil {
		return domain.WeatherStation{}, err
	}
	for _, st := range stations {
		if st.GaugeID == gaugeID {
			return st, nil
		}
	}
	return domain.WeatherStation{}, domain.Errorf(domain.KindNotFound, "station %s not found", gaugeID)
}

// UpsertStation replaces the feature with the same gauge ID in place, keeping
// file order stable, or appends it. Other features are left as they were.
func (s *Store) UpsertStation(ctx context.Context, st domain.WeatherStation) (domain.WeatherStation, error) {
	s.stationsMu.Lock()
	defer s.stationsMu.Unlock()
	unlock, err := lockFile(ctx, s.stationsPath)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	defer unlock()

	fc, err := readRaw(s.stationsPath)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	st.UpdatedAt = domain.Time(domain.Now())
	raw, err := json.Marshal(domain.StationToFeature(st))
	if err != nil {
		return domain.WeatherStation{}, domain.Wrap(domain.KindBackendUnavailable, err, "encode station")
	}
	fc.replaceOrAppend(raw, st.GaugeID, "gauge_id", "gaugeId")

	if err := fc.write(s.stationsPath); err != nil {
		return domain.WeatherStation{}, err
	}
	return st, nil
}

// lockFile takes the cross-process lock guarding path, waiting at most
// lockTimeout. The returned func releases it.
func lockFile(ctx context.Context, path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "create data directory")
	}
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "lock "+path)
	}
	if !locked {
		return nil, domain.Errorf(domain.KindBackendUnavailable, "lock %s: held by another writer", path)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *Store) readReports() ([]domain.FloodReport, error) {
	data, err := readFile(s.reportsPath)
	if err != nil || data == nil {
		return nil, err
	}
	if isArray(data) {
		return decodeLegacyReports(data, s.logger)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "reports file is corrupt")
	}
	reports := make([]domain.FloodReport, 0, len(fc.Features))
	for i, f := range fc.Features {
		r, err := domain.ReportFromFeature(f)
		if err != nil {
			s.logger.Warn("skipping unreadable report", "path", s.reportsPath, "index", i, "error", err)
			continue
		}
		r.ApplyDefaults()
		reports = append(reports, r)
	}
	return reports, nil
}

func (s *Store) readStations() ([]domain.WeatherStation, error) {
	data, err := readFile(s.stationsPath)
	if err != nil || data == nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "stations file is corrupt")
	}
	stations := make([]domain.WeatherStation, 0, len(fc.Features))
	for i, f := range fc.Features {
		st, err := domain.StationFromFeature(f)
		if err != nil {
			s.logger.Warn("skipping unreadable station", "path", s.stationsPath, "index", i, "error", err)
			continue
		}
		st.ApplyDefaults()
		stations = append(stations, st)
	}
	return stations, nil
}

// readFile returns nil data for a missing or empty file.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "read "+path)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func isArray(data []byte) bool {
	return len(data) > 0 && data[0] == '['
}

// writeFile replaces path with v encoded as JSON by writing a sibling temp
// file and renaming it, so readers never observe a partial file.
func writeFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, "encode collection")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, "create data directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, "create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return domain.Wrap(domain.KindBackendUnavailable, err, "write "+tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return domain.Wrap(domain.KindBackendUnavailable, err, "sync "+tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, "close "+tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.Wrap(domain.KindBackendUnavailable, err, fmt.Sprintf("replace %s", path))
	}
	return nil
}
