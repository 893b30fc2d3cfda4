//go:build integration

package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPostgres(ctx context.Context, t *testing.T) *service.Service {
	t.Helper()
	cfg := &config.Config{
		Backend:            config.BackendPostgres,
		DatabaseURL:        startPostGIS(ctx, t),
		PoolMinConns:       1,
		PoolMaxConns:       4,
		PoolAcquireTimeout: 5 * time.Second,
		FloodRiskPath:      "testdata/missing.geojson",
	}
	metrics := observability.NewMetricsForTesting()
	backend, err := service.OpenBackend(ctx, cfg, discardLogger(), metrics)
	require.NoError(t, err)

	svc := service.New(backend, discardLogger(), metrics)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestPostgresBackend_Reports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	svc := openPostgres(ctx, t)

	require.NoError(t, svc.CheckReadiness(ctx))
	assert.Equal(t, "postgres", svc.BackendName())

	created, err := svc.CreateReport(ctx, domain.FloodReport{
		Location:    "Banjara Hills",
		Severity:    domain.SeverityModerate,
		Description: "Knee-deep water on Road No. 12",
		Confidence:  70,
		Position:    domain.Position{Lon: 78.3908, Lat: 17.4486},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.GetReport(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Position, got.Position)
	assert.Equal(t, domain.SeverityModerate, got.Severity)
	assert.Equal(t, domain.DefaultCategory, got.Category)
	assert.Equal(t, domain.ReportActive, got.Status)
	assert.WithinDuration(t, created.Timestamp, got.Timestamp, time.Millisecond)

	_, err = svc.GetReport(ctx, "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	reports, err := svc.ListReports(ctx, "banjara")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestPostgresBackend_ConcurrentCreates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	svc := openPostgres(ctx, t)

	const n = 16
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.CreateReport(ctx, domain.FloodReport{
				Location: "Kukatpally",
				Severity: domain.SeverityLow,
				Position: domain.Position{Lon: 78.41, Lat: 17.49},
			})
			if assert.NoError(t, err) {
				ids <- r.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestPostgresBackend_StationUpsertIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	svc := openPostgres(ctx, t)

	st := domain.WeatherStation{
		GaugeID:    "TS-1042",
		Location:   "Madhapur",
		RainfallMM: domain.Float(12.5),
		DateTime:   domain.Time(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)),
		Position:   domain.Position{Lon: 78.3915, Lat: 17.4483},
	}

	first, err := svc.UpsertStation(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, first.UpdatedAt)

	st.RainfallMM = domain.Float(20)
	second, err := svc.UpsertStation(ctx, st)
	require.NoError(t, err)

	stations, err := svc.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, 20.0, *stations[0].RainfallMM)
	assert.Equal(t, "Madhapur", stations[0].Name)
	assert.Nil(t, stations[0].Humidity)
	assert.Equal(t, st.DateTime, stations[0].DateTime)
	assert.False(t, second.UpdatedAt.Before(*first.UpdatedAt))
}

func TestPostgresBackend_MissingReferenceLayer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	svc := openPostgres(ctx, t)

	_, err := svc.ReferenceLayer().Stat(ctx)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
