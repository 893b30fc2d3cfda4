package localfile_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/localfile"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/gofrs/flock"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*localfile.Store, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		FloodRiskPath: filepath.Join(dir, "floodrisk.geojson"),
		ReportsPath:   filepath.Join(dir, "reported_floods.geojson"),
		StationsPath:  filepath.Join(dir, "rain_gauge.geojson"),
	}
	return localfile.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), cfg
}

func sampleReport() domain.FloodReport {
	return domain.FloodReport{
		Location:    "Malakpet",
		Severity:    domain.SeverityModerate,
		Category:    domain.DefaultCategory,
		Description: "Water on the underpass",
		ReportedBy:  "resident",
		Confidence:  70,
		Timestamp:   time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		Status:      domain.ReportActive,
		Position:    domain.Position{Lon: 78.5, Lat: 17.37},
	}
}

func TestStore_MissingFilesAreEmpty(t *testing.T) {
	store, _ := newStore(t)

	reports, err := store.ListReports(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)

	stations, err := store.ListStations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stations)
}

func TestStore_CreateThenGet(t *testing.T) {
	store, cfg := newStore(t)
	ctx := context.Background()

	created, err := store.CreateReport(ctx, sampleReport())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := store.GetReport(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	data, err := os.ReadFile(cfg.ReportsPath)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err, "reports file is a FeatureCollection")
	assert.Len(t, fc.Features, 1)
}

func TestStore_GetReportNotFound(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.GetReport(context.Background(), "nope")

	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestStore_ConcurrentCreatesAreAllKept(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateReport(ctx, sampleReport())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reports, err := store.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, n)
}

func TestStore_UpsertStation(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	st := domain.WeatherStation{
		GaugeID:    "TS-101",
		Name:       "Gachibowli",
		Location:   "Gachibowli",
		RainfallMM: domain.Float(3.5),
		Status:     domain.StationActive,
		Position:   domain.Position{Lon: 78.34, Lat: 17.44},
	}

	_, err := store.UpsertStation(ctx, st)
	require.NoError(t, err)

	st.RainfallMM = domain.Float(41)
	updated, err := store.UpsertStation(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, updated.UpdatedAt)

	stations, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1, "same gauge id replaces the record")
	assert.InDelta(t, 41, *stations[0].RainfallMM, 0.001)

	got, err := store.GetStation(ctx, "TS-101")
	require.NoError(t, err)
	assert.Equal(t, "Gachibowli", got.Name)

	_, err = store.GetStation(ctx, "TS-999")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestStore_ReadsLegacyStructuredArray(t *testing.T) {
	store, cfg := newStore(t)
	legacy := `[
	  {"id":"legacy-1","location":"Old City","severity":"High","category":"Flooding",
	   "description":"Knee deep","reporter":"Anonymous","confidence":85,
	   "timestamp":"2024-06-30T18:00:00Z","verified":true,
	   "coordinates":{"lat":17.36,"lng":78.47}},
	  {"id":"broken","severity":"low","coordinates":{"lat":17.36}}
	]`
	require.NoError(t, os.WriteFile(cfg.ReportsPath, []byte(legacy), 0o600))

	reports, err := store.ListReports(context.Background())

	require.NoError(t, err)
	require.Len(t, reports, 1, "entries without a usable position are skipped")
	r := reports[0]
	assert.Equal(t, "legacy-1", r.ID)
	assert.Equal(t, domain.SeverityHigh, r.Severity)
	assert.Equal(t, "Anonymous", r.ReportedBy)
	assert.Equal(t, 85, r.Confidence)
	assert.True(t, r.Verified)
	assert.Equal(t, domain.Position{Lon: 78.47, Lat: 17.36}, r.Position)
}

func TestStore_CorruptFileIsUnavailable(t *testing.T) {
	store, cfg := newStore(t)
	require.NoError(t, os.WriteFile(cfg.StationsPath, []byte(`{"type":"FeatureCollection","features":[`), 0o600))

	_, err := store.ListStations(context.Background())

	assert.Equal(t, domain.KindBackendUnavailable, domain.KindOf(err))
}

func TestStore_CheckReadiness(t *testing.T) {
	store, _ := newStore(t)
	require.NoError(t, store.CheckReadiness(context.Background()))

	missing := localfile.New(&config.Config{
		ReportsPath:  "/nonexistent/dir/reports.geojson",
		StationsPath: "/nonexistent/dir/stations.geojson",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := missing.CheckReadiness(context.Background())
	assert.Equal(t, domain.KindBackendUnavailable, domain.KindOf(err))
}

func featuresIn(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var fc struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	return fc.Features
}

func propertyValues(features []map[string]any, key string) []any {
	out := make([]any, 0, len(features))
	for _, f := range features {
		props, _ := f["properties"].(map[string]any)
		out = append(out, props[key])
	}
	return out
}

func TestStore_CreateKeepsUnreadableFeatures(t *testing.T) {
	store, cfg := newStore(t)
	seed := `{"type":"FeatureCollection","name":"reported_floods","features":[
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[78.45,17.39]},
	   "properties":{"id":"keep-me","location":"Tolichowki","severity":"critical"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[78.44,17.43]},
	   "properties":{"id":"valid-1","location":"Ameerpet","severity":"low","category":"Flooding",
	    "reported_by":"resident","confidence":60,"timestamp":"2024-07-01T08:00:00Z","status":"active"}}
	]}`
	require.NoError(t, os.WriteFile(cfg.ReportsPath, []byte(seed), 0o600))

	created, err := store.CreateReport(context.Background(), sampleReport())
	require.NoError(t, err)

	features := featuresIn(t, cfg.ReportsPath)
	require.Len(t, features, 3)
	assert.Equal(t, []any{"keep-me", "valid-1", created.ID}, propertyValues(features, "id"))
	assert.Equal(t, []any{"Tolichowki", "Ameerpet", "Malakpet"}, propertyValues(features, "location"))
	assert.Equal(t, "critical", propertyValues(features, "severity")[0])

	data, err := os.ReadFile(cfg.ReportsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "reported_floods"`)

	reports, err := store.ListReports(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 2, "the unreadable feature is kept on disk but not listed")
}

func TestStore_UpsertKeepsUnreadableStations(t *testing.T) {
	store, cfg := newStore(t)
	seed := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":null,"properties":{"gauge_id":"TS-900","name":"Unplaced"}}
	]}`
	require.NoError(t, os.WriteFile(cfg.StationsPath, []byte(seed), 0o600))

	_, err := store.UpsertStation(context.Background(), domain.WeatherStation{
		GaugeID:  "TS-101",
		Name:     "Gachibowli",
		Status:   domain.StationActive,
		Position: domain.Position{Lon: 78.34, Lat: 17.44},
	})
	require.NoError(t, err)

	features := featuresIn(t, cfg.StationsPath)
	assert.Equal(t, []any{"TS-900", "TS-101"}, propertyValues(features, "gauge_id"))
	assert.Nil(t, features[0]["geometry"])
}

func TestStore_WriteConvertsLegacyArrayLosslessly(t *testing.T) {
	store, cfg := newStore(t)
	legacy := `[
	  {"id":"legacy-1","location":"Old City","severity":"High","category":"Flooding",
	   "description":"Knee deep","reporter":"Anonymous","confidence":85,
	   "timestamp":"2024-06-30T18:00:00Z","coordinates":{"lat":17.36,"lng":78.47}},
	  {"id":"broken","severity":"low","coordinates":{"lat":17.36}}
	]`
	require.NoError(t, os.WriteFile(cfg.ReportsPath, []byte(legacy), 0o600))
	ctx := context.Background()

	created, err := store.CreateReport(ctx, sampleReport())
	require.NoError(t, err)

	features := featuresIn(t, cfg.ReportsPath)
	require.Len(t, features, 3)
	assert.Equal(t, []any{"legacy-1", "broken", created.ID}, propertyValues(features, "id"))
	assert.Nil(t, features[1]["geometry"])
	assert.Equal(t, map[string]any{"lat": 17.36}, propertyValues(features, "coordinates")[1])

	old, err := store.GetReport(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Position{Lon: 78.47, Lat: 17.36}, old.Position)
	assert.Equal(t, "Anonymous", old.ReportedBy)
}

func TestStore_WritersInSeparateStoresShareTheFile(t *testing.T) {
	first, cfg := newStore(t)
	second := localfile.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		store := first
		if i%2 == 1 {
			store = second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpsertStation(ctx, domain.WeatherStation{
				GaugeID:  fmt.Sprintf("TS-%03d", i),
				Name:     "Gauge",
				Status:   domain.StationActive,
				Position: domain.Position{Lon: 78.4, Lat: 17.4},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stations, err := first.ListStations(ctx)
	require.NoError(t, err)
	assert.Len(t, stations, n)
}

func TestStore_LockHonoursContext(t *testing.T) {
	store, cfg := newStore(t)
	require.NoError(t, os.WriteFile(cfg.ReportsPath+".lock", nil, 0o600))
	held := flock.New(cfg.ReportsPath + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = store.CreateReport(ctx, sampleReport())

	assert.Equal(t, domain.KindBackendUnavailable, domain.KindOf(err))
	_, statErr := os.Stat(cfg.ReportsPath)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}
