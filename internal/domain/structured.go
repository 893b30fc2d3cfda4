package domain

// Coordinates is the {lat, lng} object used by the structured report form.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StructuredReport is the flattened display form of a FloodReport consumed by
// the dashboard list view. It is output-only.
type StructuredReport struct {
	ID          string      `json:"id"`
	Location    string      `json:"location"`
	Severity    string      `json:"severity"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Reporter    string      `json:"reporter"`
	Confidence  int         `json:"confidence"`
	Timestamp   string      `json:"timestamp"`
	Verified    bool        `json:"verified"`
	ImageURL    string      `json:"imageUrl,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
}

// ToStructured flattens a report. Unlike ToFeature, severity is capitalised.
func ToStructured(r FloodReport) StructuredReport {
	return StructuredReport{
		ID:          r.ID,
		Location:    r.Location,
		Severity:    r.Severity.Display(),
		Category:    r.Category,
		Description: r.Description,
		Reporter:    r.ReportedBy,
		Confidence:  r.Confidence,
		Timestamp:   formatTimestamp(r.Timestamp),
		Verified:    r.Verified,
		ImageURL:    r.PhotoURL,
		Coordinates: Coordinates{Lat: r.Position.Lat, Lng: r.Position.Lon},
	}
}

// ToStructuredList converts reports in order, never returning nil.
func ToStructuredList(reports []FloodReport) []StructuredReport {
	out := make([]StructuredReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, ToStructured(r))
	}
	return out
}
