package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockExtractor hands out one batch per call, then blocks until the
// context is cancelled to simulate waiting for messages.
type mockExtractor struct {
	batches [][]domain.RawEvent
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockLoader struct {
	mu       sync.Mutex
	failures []error // returned in order before succeeding
	calls    int
	loaded   []domain.WeatherStation
}

func (m *mockLoader) LoadBatch(_ context.Context, stations []domain.WeatherStation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	m.loaded = append(m.loaded, stations...)
	return nil
}

func (m *mockLoader) snapshot() (int, []domain.WeatherStation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]domain.WeatherStation(nil), m.loaded...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(ext pipeline.BatchExtractor, ldr pipeline.BatchLoader, metrics *observability.Metrics) *pipeline.Pipeline {
	return pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 10)
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	raw := makeRawEvent(t, "TS-1001", "Kukatpally", "17.4849", "78.4138")
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(ext, ldr, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	_, loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, "TS-1001", loaded[0].GaugeID)
	assert.Equal(t, domain.Position{Lon: 78.4138, Lat: 17.4849}, loaded[0].Position)
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StationsUpserted), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ldr := &mockLoader{}
	p := newPipeline(&mockExtractor{}, ldr, observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	_, loaded := ldr.snapshot()
	assert.Empty(t, loaded)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_SkipsAndCommitsUnparseableRecords(t *testing.T) {
	var committed atomic.Int64
	bad := domain.RawEvent{Value: []byte("not json"), Commit: func(context.Context) error {
		committed.Add(1)
		return nil
	}}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{bad}}}
	ldr := &mockLoader{}
	metrics := observability.NewMetricsForTesting()
	p := newPipeline(ext, ldr, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	calls, _ := ldr.snapshot()
	assert.Zero(t, calls, "nothing to load")
	assert.Equal(t, int64(1), committed.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.TransformErrors), 0)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_RetriesUnavailableBackendBeforeCommitting(t *testing.T) {
	var commits atomic.Int64
	raw := makeRawEvent(t, "TS-1002", "Madhapur", "17.4483", "78.3915")
	ldr := &mockLoader{failures: []error{domain.Errorf(domain.KindBackendUnavailable, "pool exhausted")}}
	raw.Commit = func(context.Context) error {
		calls, _ := ldr.snapshot()
		assert.Equal(t, 2, calls, "commit happens only after the retry succeeded")
		commits.Add(1)
		return nil
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := newPipeline(ext, ldr, observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	calls, loaded := ldr.snapshot()
	assert.Equal(t, 2, calls)
	assert.Len(t, loaded, 1)
	assert.Equal(t, int64(1), commits.Load())
}

func TestPipeline_Run_DropsRejectedBatch(t *testing.T) {
	var commits atomic.Int64
	raw := makeRawEvent(t, "TS-1003", "Charminar", "17.3616", "78.4747")
	raw.Commit = func(context.Context) error {
		commits.Add(1)
		return nil
	}
	ldr := &mockLoader{failures: []error{domain.Errorf(domain.KindBackendRejected, "conditional check failed")}}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := newPipeline(ext, ldr, observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	calls, _ := ldr.snapshot()
	assert.Equal(t, 1, calls, "rejections are not retried")
	assert.Equal(t, int64(1), commits.Load())
}

func TestPipeline_Run_StopsRetryingOnShutdown(t *testing.T) {
	raw := makeRawEvent(t, "TS-1004", "Uppal", "17.4058", "78.5591")
	unavailable := domain.Errorf(domain.KindBackendUnavailable, "connection refused")
	ldr := &mockLoader{failures: []error{unavailable, unavailable, unavailable, unavailable, unavailable, unavailable}}
	raw.Commit = func(context.Context) error {
		t.Error("offset committed without a successful upsert")
		return nil
	}
	ext := &mockExtractor{batches: [][]domain.RawEvent{{raw}}}
	p := newPipeline(ext, ldr, observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	_, loaded := ldr.snapshot()
	assert.Empty(t, loaded)
}

func TestPipeline_Run_ExtractErrorBacksOff(t *testing.T) {
	ext := &failingExtractor{err: errors.New("broker unreachable")}
	p := newPipeline(ext, &mockLoader{}, observability.NewMetricsForTesting())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	// 200ms initial backoff leaves room for at most two attempts.
	assert.LessOrEqual(t, ext.calls.Load(), int64(2))
}

type failingExtractor struct {
	err   error
	calls atomic.Int64
}

func (f *failingExtractor) ExtractBatch(context.Context, int) ([]domain.RawEvent, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestStationTransformer_RejectsInvalidRecords(t *testing.T) {
	tfm := pipeline.NewTransformer(discardLogger())

	_, err := tfm.Transform(context.Background(), makeRawEvent(t, "", "Nowhere", "17.4", "78.4"))
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = tfm.Transform(context.Background(), makeRawEvent(t, "TS-9", "Nowhere", "95", "78.4"))
	assert.Equal(t, domain.KindInvalidGeometry, domain.KindOf(err))
}

// --- helpers ---

func makeRawEvent(t *testing.T, gaugeID, location, lat, lon string) domain.RawEvent {
	t.Helper()
	data, err := json.Marshal(domain.RawGaugeRecord{
		GaugeID:    gaugeID,
		Location:   location,
		Latitude:   lat,
		Longitude:  lon,
		RainfallMM: "4.5",
	})
	require.NoError(t, err)
	return domain.RawEvent{
		Key:   []byte(gaugeID),
		Value: data,
	}
}
