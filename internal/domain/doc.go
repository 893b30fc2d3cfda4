// Package domain models flood reports and rain-gauge stations and converts
// them between their canonical form and the shapes seen on the wire.
//
// # Entities
//
// A [FloodReport] is a citizen observation of flooding at a point. Reports are
// created once; the storage backend assigns the ID. A [WeatherStation] is a
// rain gauge identified by its gauge ID; stations are upserted, and a later
// reading for the same gauge replaces every field of the earlier one.
//
// Both entities carry a mandatory [Position] in WGS-84 (SRID 4326). Positions
// outside lon ∈ [-180, 180], lat ∈ [-90, 90] are rejected with
// [KindInvalidGeometry] and never reach a backend.
//
// # Wire shapes
//
// Feature form (what every fetch returns):
//
//	{"type":"Feature",
//	 "geometry":{"type":"Point","coordinates":[78.3908,17.4486]},
//	 "properties":{"id":"...","severity":"high","reported_by":"Anonymous",...}}
//
// Coordinates are always [longitude, latitude]. Enum properties are lowercase.
//
// Structured form (dashboard list view, reports only, output only):
//
//	{"id":"...","severity":"High","reporter":"Anonymous","imageUrl":"...",
//	 "coordinates":{"lat":17.4486,"lng":78.3908}}
//
// Submissions are accepted either as a Feature or as a flat object with
// top-level "latitude" and "longitude". The shape is chosen by key presence
// alone; see [DecodeReportInput].
//
// # Gauge exports
//
// Rain-gauge readings arrive as rows of the automatic weather station export.
// Dates in that export are day-first: "Date & Time" is dd/mm/yyyy and
// "Last Updated" is dd/mm/yyyy HH:MM. Blank cells mean "not measured" and are
// kept as null rather than zero. See [ParseGaugeRecord].
//
// # Errors
//
// Every error that leaves this package or a storage driver is an [*Error]
// tagged with a [Kind]. Only [KindBackendUnavailable] is retryable.
package domain
