package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxDescriptionLength bounds FloodReport.Description, counted in characters.
	MaxDescriptionLength = 500

	DefaultCategory   = "Flooding"
	DefaultReportedBy = "Anonymous"
)

// Severity grades a reported flood.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// ParseSeverity accepts any letter case but rejects values outside the enumerated set.
func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case SeverityLow, SeverityMedium, SeverityModerate, SeverityHigh:
		return v, nil
	default:
		return "", Errorf(KindInvalidEnumValue, "unknown severity %q", s)
	}
}

// Display returns the severity with its first letter capitalised ("High").
func (s Severity) Display() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// ReportStatus is the lifecycle state of a FloodReport.
type ReportStatus string

const (
	ReportActive     ReportStatus = "active"
	ReportPending    ReportStatus = "pending"
	ReportResolved   ReportStatus = "resolved"
	ReportFalseAlarm ReportStatus = "false_alarm"
)

// ParseReportStatus returns ReportActive for an empty value.
func ParseReportStatus(s string) (ReportStatus, error) {
	switch v := ReportStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ReportActive, nil
	case ReportActive, ReportPending, ReportResolved, ReportFalseAlarm:
		return v, nil
	default:
		return "", Errorf(KindInvalidEnumValue, "unknown report status %q", s)
	}
}

// StationStatus is the operational state of a WeatherStation.
type StationStatus string

const (
	StationActive      StationStatus = "active"
	StationInactive    StationStatus = "inactive"
	StationMaintenance StationStatus = "maintenance"
)

// ParseStationStatus returns StationActive for an empty value.
func ParseStationStatus(s string) (StationStatus, error) {
	switch v := StationStatus(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return StationActive, nil
	case StationActive, StationInactive, StationMaintenance:
		return v, nil
	default:
		return "", Errorf(KindInvalidEnumValue, "unknown station status %q", s)
	}
}

// FloodReport is a citizen observation of flooding at a point.
type FloodReport struct {
	ID          string
	Location    string
	Severity    Severity
	Category    string
	Description string
	ReportedBy  string
	Confidence  int
	Timestamp   time.Time
	Verified    bool
	Status      ReportStatus
	PhotoURL    string
	Position    Position
}

// ApplyDefaults fills optional fields that were left empty.
func (r *FloodReport) ApplyDefaults() {
	if strings.TrimSpace(r.Category) == "" {
		r.Category = DefaultCategory
	}
	if strings.TrimSpace(r.ReportedBy) == "" {
		r.ReportedBy = DefaultReportedBy
	}
	if r.Status == "" {
		r.Status = ReportActive
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = clock.Now().UTC()
	}
}

// Normalize rewrites enum fields in their canonical lowercase form. Values
// outside the enumerated sets are left unchanged for Validate to reject.
func (r *FloodReport) Normalize() {
	if sev, err := ParseSeverity(string(r.Severity)); err == nil {
		r.Severity = sev
	}
	if st, err := ParseReportStatus(string(r.Status)); err == nil {
		r.Status = st
	}
}

// Validate checks every invariant of a report. It does not apply defaults.
func (r FloodReport) Validate() error {
	if err := r.Position.Validate(); err != nil {
		return err
	}
	if r.Severity == "" {
		return Errorf(KindValidation, "severity is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return err
	}
	if _, err := ParseReportStatus(string(r.Status)); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(r.Description); n > MaxDescriptionLength {
		return Errorf(KindValidation, "description is %d characters, maximum is %d", n, MaxDescriptionLength)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return Errorf(KindValidation, "confidence %d out of range [0, 100]", r.Confidence)
	}
	return nil
}

// MatchesLocation reports whether the report's location and the query contain
// one another, ignoring case. An empty query matches everything.
func (r FloodReport) MatchesLocation(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	loc := strings.ToLower(r.Location)
	if loc == "" {
		return false
	}
	return strings.Contains(loc, q) || strings.Contains(q, loc)
}

// WeatherStation is a rain gauge keyed by GaugeID. Measurements are nullable.
type WeatherStation struct {
	GaugeID     string
	Name        string
	Location    string
	MandalName  string
	RainfallMM  *float64
	Temperature *float64
	Humidity    *float64
	DateTime    *time.Time // calendar date, UTC midnight
	LastUpdated *time.Time
	Status      StationStatus
	Position    Position
	UpdatedAt   *time.Time
}

// ApplyDefaults fills optional fields that were left empty.
func (s *WeatherStation) ApplyDefaults() {
	if s.Status == "" {
		s.Status = StationActive
	}
	if s.Name == "" {
		s.Name = s.Location
	}
}

// Normalize rewrites Status in its canonical lowercase form.
func (s *WeatherStation) Normalize() {
	if st, err := ParseStationStatus(string(s.Status)); err == nil {
		s.Status = st
	}
}

// Validate checks every invariant of a station.
func (s WeatherStation) Validate() error {
	if strings.TrimSpace(s.GaugeID) == "" {
		return Errorf(KindValidation, "gauge_id is required")
	}
	if err := s.Position.Validate(); err != nil {
		return err
	}
	if _, err := ParseStationStatus(string(s.Status)); err != nil {
		return err
	}
	return nil
}

// Float returns a pointer to v, for populating nullable measurements.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
