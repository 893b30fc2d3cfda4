package domain

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Wire formats for time-valued properties.
const (
	TimestampFormat = time.RFC3339Nano
	DateFormat      = "2006-01-02"
)

// ToFeature renders a report as a GeoJSON Point feature. Severity and status
// are emitted lowercase.
func ToFeature(r FloodReport) *geojson.Feature {
	f := geojson.NewFeature(r.Position.Point())
	f.Properties = geojson.Properties{
		"id":          r.ID,
		"location":    r.Location,
		"severity":    string(r.Severity),
		"category":    r.Category,
		"description": r.Description,
		"reported_by": r.ReportedBy,
		"confidence":  r.Confidence,
		"timestamp":   formatTimestamp(r.Timestamp),
		"verified":    r.Verified,
		"status":      string(r.Status),
	}
	if r.PhotoURL != "" {
		f.Properties["photo_url"] = r.PhotoURL
	}
	return f
}

// StationToFeature renders a station as a GeoJSON Point feature. Absent
// measurements and dates are emitted as null.
func StationToFeature(s WeatherStation) *geojson.Feature {
	f := geojson.NewFeature(s.Position.Point())
	f.Properties = geojson.Properties{
		"gauge_id":     s.GaugeID,
		"name":         s.Name,
		"location":     s.Location,
		"mandal_name":  s.MandalName,
		"rainfall_mm":  nullableFloat(s.RainfallMM),
		"temperature":  nullableFloat(s.Temperature),
		"humidity":     nullableFloat(s.Humidity),
		"date_time":    nullableTime(s.DateTime, DateFormat),
		"last_updated": nullableTime(s.LastUpdated, TimestampFormat),
		"status":       string(s.Status),
	}
	if s.UpdatedAt != nil {
		f.Properties["updated_at"] = formatTimestamp(*s.UpdatedAt)
	}
	return f
}

// ReportsToCollection wraps reports in a FeatureCollection. An empty input
// yields an empty (not null) features array.
func ReportsToCollection(reports []FloodReport) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(reports))
	for _, r := range reports {
		fc.Append(ToFeature(r))
	}
	return fc
}

// StationsToCollection wraps stations in a FeatureCollection.
func StationsToCollection(stations []WeatherStation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = make([]*geojson.Feature, 0, len(stations))
	for _, s := range stations {
		fc.Append(StationToFeature(s))
	}
	return fc
}

// ReportFromFeature is the inverse of ToFeature. It is used by drivers that
// persist features verbatim and by the wire decoder.
func ReportFromFeature(f *geojson.Feature) (FloodReport, error) {
	if f == nil {
		return FloodReport{}, Errorf(KindInvalidGeometry, "feature is required")
	}
	pos, err := PositionFromGeometry(f.Geometry)
	if err != nil {
		return FloodReport{}, err
	}
	return ReportFromProperties(props(f.Properties), pos)
}

// StationFromFeature is the inverse of StationToFeature.
func StationFromFeature(f *geojson.Feature) (WeatherStation, error) {
	if f == nil {
		return WeatherStation{}, Errorf(KindInvalidGeometry, "feature is required")
	}
	pos, err := PositionFromGeometry(f.Geometry)
	if err != nil {
		return WeatherStation{}, err
	}
	return StationFromProperties(props(f.Properties), pos)
}

// ReportFromProperties builds a report from a property map. Both the
// snake_case feature keys and the structured aliases (reporter, imageUrl) are
// accepted. Defaults are not applied here.
func ReportFromProperties(m map[string]any, pos Position) (FloodReport, error) {
	p := props(m)
	r := FloodReport{Position: pos}

	var err error
	if r.ID, err = p.str("id"); err != nil {
		return FloodReport{}, err
	}
	if r.Location, err = p.str("location"); err != nil {
		return FloodReport{}, err
	}
	sev, err := p.str("severity")
	if err != nil {
		return FloodReport{}, err
	}
	if sev != "" {
		if r.Severity, err = ParseSeverity(sev); err != nil {
			return FloodReport{}, err
		}
	}
	if r.Category, err = p.str("category"); err != nil {
		return FloodReport{}, err
	}
	if r.Description, err = p.str("description"); err != nil {
		return FloodReport{}, err
	}
	if r.ReportedBy, err = p.str("reported_by", "reporter", "reportedBy"); err != nil {
		return FloodReport{}, err
	}
	if r.Confidence, err = p.integer("confidence"); err != nil {
		return FloodReport{}, err
	}
	if r.Timestamp, err = p.timestamp("timestamp"); err != nil {
		return FloodReport{}, err
	}
	if r.Verified, err = p.boolean("verified"); err != nil {
		return FloodReport{}, err
	}
	status, err := p.str("status")
	if err != nil {
		return FloodReport{}, err
	}
	if status != "" {
		if r.Status, err = ParseReportStatus(status); err != nil {
			return FloodReport{}, err
		}
	}
	if r.PhotoURL, err = p.str("photo_url", "imageUrl", "photoUrl"); err != nil {
		return FloodReport{}, err
	}
	return r, nil
}

// StationFromProperties builds a station from a property map.
func StationFromProperties(m map[string]any, pos Position) (WeatherStation, error) {
	p := props(m)
	s := WeatherStation{Position: pos}

	var err error
	if s.GaugeID, err = p.str("gauge_id", "gaugeId"); err != nil {
		return WeatherStation{}, err
	}
	if s.Name, err = p.str("name"); err != nil {
		return WeatherStation{}, err
	}
	if s.Location, err = p.str("location"); err != nil {
		return WeatherStation{}, err
	}
	if s.MandalName, err = p.str("mandal_name", "mandalName"); err != nil {
		return WeatherStation{}, err
	}
	if s.RainfallMM, err = p.number("rainfall_mm", "rainfallMm"); err != nil {
		return WeatherStation{}, err
	}
	if s.Temperature, err = p.number("temperature"); err != nil {
		return WeatherStation{}, err
	}
	if s.Humidity, err = p.number("humidity"); err != nil {
		return WeatherStation{}, err
	}
	s.DateTime = p.optionalDate("date_time", "dateTime")
	s.LastUpdated = p.optionalTime("last_updated", "lastUpdated")
	s.UpdatedAt = p.optionalTime("updated_at", "updatedAt")
	status, err := p.str("status")
	if err != nil {
		return WeatherStation{}, err
	}
	if s.Status, err = ParseStationStatus(status); err != nil {
		return WeatherStation{}, err
	}
	return s, nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampFormat)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTime(t *time.Time, layout string) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(layout)
}
