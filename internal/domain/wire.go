package domain

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// InputShape identifies which of the accepted submission layouts a payload used.
type InputShape int

const (
	ShapeUnknown InputShape = iota
	// ShapeFeature is a GeoJSON Feature with a Point geometry.
	ShapeFeature
	// ShapeFlat is a plain object with top-level latitude and longitude.
	ShapeFlat
)

func (s InputShape) String() string {
	switch s {
	case ShapeFeature:
		return "feature"
	case ShapeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// wireInput is a submission whose shape has been resolved but whose fields
// have not yet been interpreted.
type wireInput struct {
	shape   InputShape
	feature *geojson.Feature
	fields  map[string]any
}

// resolveShape inspects key presence only: a geometry key selects the Feature
// shape even when its value is unusable, so that a broken geometry is reported
// rather than silently falling back to flat coordinates.
func resolveShape(data []byte) (wireInput, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return wireInput{}, Wrap(KindValidation, err, "request body must be a JSON object")
	}
	if fields == nil {
		return wireInput{}, Errorf(KindValidation, "request body must be a JSON object")
	}

	if g, ok := fields["geometry"]; ok {
		if err := checkPointCoordinates(g); err != nil {
			return wireInput{}, err
		}
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return wireInput{}, Wrap(KindInvalidGeometry, err, "geometry is not a valid GeoJSON Point")
		}
		return wireInput{shape: ShapeFeature, feature: f}, nil
	}

	_, hasLat := fields["latitude"]
	_, hasLon := fields["longitude"]
	if hasLat && hasLon {
		return wireInput{shape: ShapeFlat, fields: fields}, nil
	}
	return wireInput{}, Errorf(KindInvalidGeometry, "submission requires a geometry or latitude and longitude")
}

// checkPointCoordinates rejects a geometry whose coordinates array has fewer
// than two members, which the GeoJSON decoder would otherwise zero-fill.
func checkPointCoordinates(g any) error {
	obj, ok := g.(map[string]any)
	if !ok {
		return Errorf(KindInvalidGeometry, "geometry must be an object")
	}
	coords, ok := obj["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return Errorf(KindInvalidGeometry, "geometry requires [longitude, latitude] coordinates")
	}
	return nil
}

// flatPosition reads a position from top-level latitude/longitude values.
func flatPosition(fields map[string]any) (Position, error) {
	p := props(fields)
	lat, err := p.number("latitude")
	if err != nil {
		return Position{}, Wrap(KindInvalidGeometry, err, "invalid latitude")
	}
	lon, err := p.number("longitude")
	if err != nil {
		return Position{}, Wrap(KindInvalidGeometry, err, "invalid longitude")
	}
	if lat == nil || lon == nil {
		return Position{}, Errorf(KindInvalidGeometry, "latitude and longitude must both be set")
	}
	return NewPosition(*lon, *lat)
}

// DecodeReportInput turns a submission body in either accepted shape into a
// report with defaults applied.
func DecodeReportInput(data []byte) (FloodReport, InputShape, error) {
	in, err := resolveShape(data)
	if err != nil {
		return FloodReport{}, ShapeUnknown, err
	}

	var r FloodReport
	switch in.shape {
	case ShapeFeature:
		r, err = ReportFromFeature(in.feature)
	case ShapeFlat:
		r, err = ReportFromValues(in.fields)
	}
	if err != nil {
		return FloodReport{}, in.shape, err
	}
	r.ApplyDefaults()
	return r, in.shape, nil
}

// ReportFromValues builds a report from a flat field map carrying latitude
// and longitude, such as a decoded JSON object or form values.
func ReportFromValues(fields map[string]any) (FloodReport, error) {
	pos, err := flatPosition(fields)
	if err != nil {
		return FloodReport{}, err
	}
	return ReportFromProperties(fields, pos)
}

// DecodeStationInput decodes a station submission in either accepted shape.
func DecodeStationInput(data []byte) (WeatherStation, error) {
	in, err := resolveShape(data)
	if err != nil {
		return WeatherStation{}, err
	}

	var s WeatherStation
	switch in.shape {
	case ShapeFeature:
		s, err = StationFromFeature(in.feature)
	case ShapeFlat:
		var pos Position
		if pos, err = flatPosition(in.fields); err == nil {
			s, err = StationFromProperties(in.fields, pos)
		}
	}
	if err != nil {
		return WeatherStation{}, err
	}
	s.ApplyDefaults()
	return s, nil
}
