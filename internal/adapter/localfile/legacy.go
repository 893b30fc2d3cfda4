package localfile

import (
	"encoding/json"
	"log/slog"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// legacyCoordinates is the {lat, lng} object of the structured array layout.
type legacyCoordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// decodeLegacyReports reads an older reports file holding a JSON array of
// structured reports instead of a FeatureCollection. The next write converts
// the file to a FeatureCollection.
func decodeLegacyReports(data []byte, logger *slog.Logger) ([]domain.FloodReport, error) {
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, domain.Wrap(domain.KindBackendUnavailable, err, "reports file is corrupt")
	}

	reports := make([]domain.FloodReport, 0, len(items))
	for i, item := range items {
		r, err := legacyReport(item)
		if err != nil {
			logger.Warn("skipping unreadable legacy report", "index", i, "error", err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func legacyReport(item map[string]any) (domain.FloodReport, error) {
	raw, err := json.Marshal(item["coordinates"])
	if err != nil {
		return domain.FloodReport{}, domain.Wrap(domain.KindInvalidGeometry, err, "coordinates")
	}
	pos, err := legacyPosition(raw)
	if err != nil {
		return domain.FloodReport{}, err
	}
	r, err := domain.ReportFromProperties(item, pos)
	if err != nil {
		return domain.FloodReport{}, err
	}
	r.ApplyDefaults()
	return r, nil
}

func legacyPosition(raw json.RawMessage) (domain.Position, error) {
	var c legacyCoordinates
	if err := json.Unmarshal(raw, &c); err != nil || c.Lat == nil || c.Lng == nil {
		return domain.Position{}, domain.Errorf(domain.KindInvalidGeometry, "coordinates must carry lat and lng")
	}
	return domain.NewPosition(*c.Lng, *c.Lat)
}

// legacyFeature is the GeoJSON form a structured array item is rewritten to.
type legacyFeature struct {
	Type       string                     `json:"type"`
	Geometry   any                        `json:"geometry"`
	Properties map[string]json.RawMessage `json:"properties"`
}

// legacyFeatures converts every item of a structured array to a feature.
// Items with usable coordinates get a Point geometry; the rest keep their
// coordinates property and a null geometry so nothing is lost.
func legacyFeatures(data []byte) ([]json.RawMessage, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	features := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		f := legacyFeature{Type: "Feature", Properties: item}
		if f.Properties == nil {
			f.Properties = map[string]json.RawMessage{}
		}
		if pos, err := legacyPosition(item["coordinates"]); err == nil {
			f.Geometry = map[string]any{"type": "Point", "coordinates": []float64{pos.Lon, pos.Lat}}
			delete(f.Properties, "coordinates")
		}
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		features = append(features, raw)
	}
	return features, nil
}
