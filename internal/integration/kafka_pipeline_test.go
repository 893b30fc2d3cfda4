//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/kafka"
	"github.com/couchcryptid/floodguard-geodata-service/internal/adapter/localfile"
	"github.com/couchcryptid/floodguard-geodata-service/internal/config"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	"github.com/couchcryptid/floodguard-geodata-service/internal/observability"
	"github.com/couchcryptid/floodguard-geodata-service/internal/pipeline"
	"github.com/couchcryptid/floodguard-geodata-service/internal/service"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStationsTopic = "test-gauge-readings"
	testReportsTopic  = "test-report-events"
)

var gaugeRecords = []domain.RawGaugeRecord{
	{GaugeID: "TS-1001", Location: "Kukatpally", MandalName: "Kukatpally", DateTime: "01/07/2024", LastUpdated: "01/07/2024 21:00", Latitude: "17.4849", Longitude: "78.4138", RainfallMM: "12.5", Temperature: "27.1", Humidity: "88"},
	{GaugeID: "TS-1002", Location: "Madhapur", MandalName: "Serilingampally", DateTime: "01/07/2024", LastUpdated: "01/07/2024 21:15", Latitude: "17.4483", Longitude: "78.3915", Temperature: "26.4", Humidity: "91"},
	{GaugeID: "TS-1003", Location: "Charminar", MandalName: "Charminar", DateTime: "01/07/2024", LastUpdated: "01/07/2024 21:00", Latitude: "17.3616", Longitude: "78.4747", RainfallMM: "31.0"},
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaStationsTopic: testStationsTopic,
		KafkaReportsTopic:  testReportsTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}
}

func localService(t *testing.T) *service.Service {
	t.Helper()
	dir := t.TempDir()
	store := localfile.New(&config.Config{
		ReportsPath:  filepath.Join(dir, "reported_floods.geojson"),
		StationsPath: filepath.Join(dir, "rain_gauge.geojson"),
	}, discardLogger())
	return service.New(store, discardLogger(), observability.NewMetricsForTesting())
}

func produce(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testStationsTopic}
	defer producer.Close()
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func gaugeMessage(t *testing.T, rec domain.RawGaugeRecord) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(rec.GaugeID), Value: payload}
}

// TestKafkaReader verifies that kafka.Reader hands out messages with a working
// commit callback.
func TestKafkaReader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStationsTopic)
	cfg := testConfig(broker, "test-reader")

	msg := gaugeMessage(t, gaugeRecords[0])
	produce(ctx, t, broker, msg)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	batch, err := reader.ExtractBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1, "flush interval ends a short batch")

	raw := batch[0]
	assert.Equal(t, []byte("TS-1001"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testStationsTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))
}

// TestPipelineEndToEnd wires reader, transformer and the data service over a
// local-file backend and checks that every valid reading becomes a station.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testStationsTopic)
	cfg := testConfig(broker, "test-pipeline")

	msgs := []kafkago.Message{{Key: []byte("bad"), Value: []byte("not-json{{{")}}
	for _, rec := range gaugeRecords {
		msgs = append(msgs, gaugeMessage(t, rec))
	}
	produce(ctx, t, broker, msgs...)

	svc := localService(t)
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()), svc, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		stations, err := svc.ListStations(ctx)
		return err == nil && len(stations) == len(gaugeRecords)
	}, 60*time.Second, 250*time.Millisecond)

	pipelineCancel()
	require.NoError(t, <-errCh)

	st, err := svc.GetStation(ctx, "TS-1003")
	require.NoError(t, err)
	assert.Equal(t, "Charminar", st.Name)
	assert.Equal(t, domain.Position{Lon: 78.4747, Lat: 17.3616}, st.Position)
	require.NotNil(t, st.RainfallMM)
	assert.Equal(t, 31.0, *st.RainfallMM)
	assert.Nil(t, st.Temperature)
	assert.NotNil(t, st.UpdatedAt)
	assert.NoError(t, p.CheckReadiness(ctx))
}

// TestReportCreatedPublished verifies that a stored report produces one event
// on the reports topic.
func TestReportCreatedPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)
	cfg := testConfig(broker, "test-events")

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	dir := t.TempDir()
	store := localfile.New(&config.Config{
		ReportsPath:  filepath.Join(dir, "reported_floods.geojson"),
		StationsPath: filepath.Join(dir, "rain_gauge.geojson"),
	}, discardLogger())
	metrics := observability.NewMetricsForTesting()
	svc := service.New(store, discardLogger(), metrics, service.WithPublisher(writer))

	created, err := svc.CreateReport(ctx, domain.FloodReport{
		Location: "Kukatpally",
		Severity: domain.SeverityHigh,
		Position: domain.Position{Lon: 78.41, Lat: 17.49},
	})
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testReportsTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, []byte(created.ID), msg.Key)
	var event domain.ReportCreated
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, created.ID, event.ID)
	assert.Equal(t, domain.SeverityHigh, event.Severity)
	assert.Equal(t, "local", event.Backend)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "report_created", headers["event_type"])
}
