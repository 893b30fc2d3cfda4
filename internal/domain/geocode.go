package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills an empty report location from its coordinates.
// If geocoder is nil or geocoding fails, the report is returned unchanged
// (graceful degradation); a submitted location is never overwritten.
func EnrichWithGeocoding(ctx context.Context, r FloodReport, geocoder Geocoder, logger *slog.Logger) FloodReport {
	if geocoder == nil || r.Location != "" {
		return r
	}

	result, err := geocoder.ReverseGeocode(ctx, r.Position.Lat, r.Position.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", r.Position.Lat,
			"lon", r.Position.Lon,
			"error", err,
		)
		return r
	}

	switch {
	case result.PlaceName != "":
		r.Location = result.PlaceName
	case result.FormattedAddress != "":
		r.Location = result.FormattedAddress
	}
	return r
}
