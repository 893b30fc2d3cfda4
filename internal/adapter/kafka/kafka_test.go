package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("TS-1042"),
		Value:     []byte(`{"AWS ID":"TS-1042"}`),
		Topic:     "gauge-readings",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("tsdps")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("TS-1042"), raw.Key)
	assert.JSONEq(t, `{"AWS ID":"TS-1042"}`, string(raw.Value))
	assert.Equal(t, "gauge-readings", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "tsdps", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 7, 1, 15, 10, 0, 0, time.UTC)
	event := domain.ReportCreated{
		ID:        "c0ffee",
		Location:  "Kukatpally",
		Severity:  domain.SeverityHigh,
		Latitude:  17.49,
		Longitude: 78.41,
		Timestamp: now,
		Backend:   "postgres",
	}

	msg, err := serializeToMessage(event, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("c0ffee"), msg.Key)
	var decoded domain.ReportCreated
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("report_created"), msg.Headers[0].Value)
	assert.Equal(t, []byte("high"), msg.Headers[1].Value)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}
