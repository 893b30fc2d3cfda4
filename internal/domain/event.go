package domain

import (
	"context"
	"time"
)

// RawGaugeRecord is one row of the rain-gauge network export, carried as flat
// JSON on the ingest topic with the CSV header names as keys. All values are
// strings because they are copied verbatim from the spreadsheet cells.
type RawGaugeRecord struct {
	GaugeID     string `json:"AWS ID"`
	Location    string `json:"AWS Location"`
	MandalName  string `json:"Mandal Name"`
	DateTime    string `json:"Date & Time"`  // dd/mm/yyyy
	LastUpdated string `json:"Last Updated"` // dd/mm/yyyy HH:MM
	Latitude    string `json:"Latitude"`
	Longitude   string `json:"Longitude"`
	RainfallMM  string `json:"Rainfall* (mm)"`
	Temperature string `json:"Temperature"`
	Humidity    string `json:"Humidity(%)"`
}

// RawEvent represents an unprocessed message from the ingest topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ReportCreated is published after a flood report has been persisted.
type ReportCreated struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Severity  Severity  `json:"severity"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
}

// NewReportCreated summarises a stored report for downstream consumers.
func NewReportCreated(r FloodReport, backend string) ReportCreated {
	return ReportCreated{
		ID:        r.ID,
		Location:  r.Location,
		Severity:  r.Severity,
		Latitude:  r.Position.Lat,
		Longitude: r.Position.Lon,
		Timestamp: r.Timestamp,
		Backend:   backend,
	}
}
