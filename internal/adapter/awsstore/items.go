package awsstore

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

// reportItem is the DynamoDB layout of a flood report: the feature properties
// as top-level attributes plus flat latitude and longitude.
type reportItem struct {
	ID          string  `dynamodbav:"id"`
	Location    string  `dynamodbav:"location"`
	Severity    string  `dynamodbav:"severity"`
	Category    string  `dynamodbav:"category"`
	Description string  `dynamodbav:"description"`
	ReportedBy  string  `dynamodbav:"reported_by"`
	Confidence  int     `dynamodbav:"confidence"`
	Timestamp   string  `dynamodbav:"timestamp"`
	Verified    bool    `dynamodbav:"verified"`
	Status      string  `dynamodbav:"status"`
	PhotoURL    string  `dynamodbav:"photo_url,omitempty"`
	Latitude    float64 `dynamodbav:"latitude"`
	Longitude   float64 `dynamodbav:"longitude"`
}

// stationItem is the DynamoDB layout of a weather station keyed by gauge_id.
type stationItem struct {
	GaugeID     string   `dynamodbav:"gauge_id"`
	Name        string   `dynamodbav:"name"`
	Location    string   `dynamodbav:"location"`
	MandalName  string   `dynamodbav:"mandal_name"`
	RainfallMM  *float64 `dynamodbav:"rainfall_mm"`
	Temperature *float64 `dynamodbav:"temperature"`
	Humidity    *float64 `dynamodbav:"humidity"`
	DateTime    *string  `dynamodbav:"date_time"`
	LastUpdated *string  `dynamodbav:"last_updated"`
	Status      string   `dynamodbav:"status"`
	Latitude    float64  `dynamodbav:"latitude"`
	Longitude   float64  `dynamodbav:"longitude"`
	UpdatedAt   string   `dynamodbav:"updated_at"`
}

func marshalReport(r domain.FloodReport) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(reportItem{
		ID:          r.ID,
		Location:    r.Location,
		Severity:    string(r.Severity),
		Category:    r.Category,
		Description: r.Description,
		ReportedBy:  r.ReportedBy,
		Confidence:  r.Confidence,
		Timestamp:   r.Timestamp.UTC().Format(domain.TimestampFormat),
		Verified:    r.Verified,
		Status:      string(r.Status),
		PhotoURL:    r.PhotoURL,
		Latitude:    r.Position.Lat,
		Longitude:   r.Position.Lon,
	})
}

func marshalStation(s domain.WeatherStation) (map[string]types.AttributeValue, error) {
	item := stationItem{
		GaugeID:     s.GaugeID,
		Name:        s.Name,
		Location:    s.Location,
		MandalName:  s.MandalName,
		RainfallMM:  s.RainfallMM,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Status:      string(s.Status),
		Latitude:    s.Position.Lat,
		Longitude:   s.Position.Lon,
	}
	if s.DateTime != nil {
		v := s.DateTime.Format(domain.DateFormat)
		item.DateTime = &v
	}
	if s.LastUpdated != nil {
		v := s.LastUpdated.UTC().Format(domain.TimestampFormat)
		item.LastUpdated = &v
	}
	if s.UpdatedAt != nil {
		item.UpdatedAt = s.UpdatedAt.UTC().Format(domain.TimestampFormat)
	}
	return attributevalue.MarshalMap(item)
}

// unmarshalReport reads an item written by marshalReport or by older writers
// that used lat/lng or a nested coordinates map.
func unmarshalReport(av map[string]types.AttributeValue) (domain.FloodReport, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(av, &m); err != nil {
		return domain.FloodReport{}, domain.Wrap(domain.KindValidation, err, "decode report item")
	}
	pos, err := itemPosition(m)
	if err != nil {
		return domain.FloodReport{}, err
	}
	r, err := domain.ReportFromProperties(m, pos)
	if err != nil {
		return domain.FloodReport{}, err
	}
	r.ApplyDefaults()
	return r, nil
}

func unmarshalStation(av map[string]types.AttributeValue) (domain.WeatherStation, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(av, &m); err != nil {
		return domain.WeatherStation{}, domain.Wrap(domain.KindValidation, err, "decode station item")
	}
	pos, err := itemPosition(m)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	s, err := domain.StationFromProperties(m, pos)
	if err != nil {
		return domain.WeatherStation{}, err
	}
	s.ApplyDefaults()
	return s, nil
}

func itemPosition(m map[string]any) (domain.Position, error) {
	lat, latOK := firstFloat(m, "latitude", "lat")
	lon, lonOK := firstFloat(m, "longitude", "lng")
	if c, ok := m["coordinates"].(map[string]any); ok {
		if !latOK {
			lat, latOK = firstFloat(c, "lat")
		}
		if !lonOK {
			lon, lonOK = firstFloat(c, "lng")
		}
	}
	if !latOK || !lonOK {
		return domain.Position{}, domain.Errorf(domain.KindInvalidGeometry, "item has no latitude/longitude")
	}
	return domain.NewPosition(lon, lat)
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{name: &types.AttributeValueMemberS{Value: value}}
}

// itemError reports a stored item that no longer satisfies the entity
// invariants. Bad stored data is a backend fault, never the caller's.
func itemError(kind, id string, err error) error {
	return domain.Wrap(domain.KindBackendUnavailable, err, fmt.Sprintf("stored %s %s is unreadable", kind, id))
}
