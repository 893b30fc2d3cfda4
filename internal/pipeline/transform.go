package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// StationTransformer implements Transformer over the gauge exporter's flat
// JSON records.
type StationTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a StationTransformer.
func NewTransformer(logger *slog.Logger) *StationTransformer {
	return &StationTransformer{logger: logger}
}

// Transform parses and validates one record, so an invalid reading is
// skipped here instead of failing the whole upsert batch.
func (t *StationTransformer) Transform(_ context.Context, raw domain.RawEvent) (domain.WeatherStation, error) {
	st, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	st.ApplyDefaults()
	if err := st.Validate(); err != nil {
		return domain.WeatherStation{}, err
	}
	t.logger.Debug("gauge record parsed", "gauge_id", st.GaugeID, "offset", raw.Offset)
	return st, nil
}
