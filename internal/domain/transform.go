package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseRawEvent deserializes an ingest message into a WeatherStation.
// It expects the flat CSV-style JSON produced by the gauge exporter.
func ParseRawEvent(raw RawEvent) (WeatherStation, error) {
	var rec RawGaugeRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return WeatherStation{}, Wrap(KindValidation, err, "parse gauge record")
	}
	return ParseGaugeRecord(rec)
}

// ParseGaugeRecord converts one exported row into a station. Rows without a
// gauge id, location or coordinates are rejected; unparseable measurements and
// dates become null, matching how the exporter leaves cells blank.
func ParseGaugeRecord(rec RawGaugeRecord) (WeatherStation, error) {
	gaugeID := strings.TrimSpace(rec.GaugeID)
	location := strings.TrimSpace(rec.Location)
	if gaugeID == "" || location == "" {
		return WeatherStation{}, Errorf(KindValidation, "missing gauge id or location")
	}

	lat, errLat := parseRequiredFloat(rec.Latitude)
	lon, errLon := parseRequiredFloat(rec.Longitude)
	if errLat != nil || errLon != nil {
		return WeatherStation{}, Errorf(KindInvalidGeometry, "invalid coordinates for gauge %s", gaugeID)
	}
	pos, err := NewPosition(lon, lat)
	if err != nil {
		return WeatherStation{}, fmt.Errorf("gauge %s: %w", gaugeID, err)
	}

	s := WeatherStation{
		GaugeID:     gaugeID,
		Name:        location,
		Location:    location,
		MandalName:  strings.TrimSpace(rec.MandalName),
		RainfallMM:  parseOptionalFloat(rec.RainfallMM),
		Temperature: parseOptionalFloat(rec.Temperature),
		Humidity:    parseOptionalFloat(rec.Humidity),
		DateTime:    parseDayFirst(rec.DateTime, "02/01/2006"),
		LastUpdated: parseDayFirst(rec.LastUpdated, "02/01/2006 15:04"),
		Status:      StationActive,
		Position:    pos,
	}
	return s, nil
}

// parseRequiredFloat fails on blank or malformed input.
func parseRequiredFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// parseOptionalFloat returns nil on blank or malformed input.
func parseOptionalFloat(s string) *float64 {
	v, err := parseRequiredFloat(s)
	if err != nil {
		return nil
	}
	return &v
}

// parseDayFirst parses a dd/mm/yyyy style value as UTC, returning nil when it does not match.
func parseDayFirst(s, layout string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return nil
	}
	return &t
}
