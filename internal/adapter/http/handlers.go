package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/couchcryptid/floodguard-geodata-service/internal/domain"
)

const (
	maxJSONBody     = 1 << 20
	maxFormFields   = 1 << 20
	retryAfterSecs  = 5
	createdResponse = "Flood report submitted successfully"
)

func (s *Server) handleFloodRisk(w http.ResponseWriter, r *http.Request) {
	if err := s.deliverer.Serve(w, r, s.svc.ReferenceLayer()); err != nil {
		s.writeError(w, r, err)
	}
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.ListReports(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ReportsToCollection(reports))
}

func (s *Server) handleListStructured(w http.ResponseWriter, r *http.Request) {
	reports, err := s.svc.ListReports(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ToStructuredList(reports))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.ToFeature(report))
}

// handleCreateReport accepts a GeoJSON Feature or a flat object with
// latitude and longitude.
func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, bodyError(err))
		return
	}

	report, shape, err := domain.DecodeReportInput(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.svc.CreateReport(r.Context(), report)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Debug("report accepted", "id", created.ID, "shape", shape.String())
	writeCreated(w, created.ID)
}

// handleCreateReportForm is the multipart variant used by the report form.
// Fields follow the flat shape; an optional "photo" file is stored first and
// its URL recorded on the report.
func (s *Server) handleCreateReportForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.photos.MaxBytes()+maxFormFields)
	if err := r.ParseMultipartForm(maxFormFields); err != nil {
		s.writeError(w, r, bodyError(err))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp files only

	fields := make(map[string]any, len(r.MultipartForm.Value))
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	report, err := domain.ReportFromValues(fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Reject an invalid report before keeping its photo.
	report.ApplyDefaults()
	if err := report.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("photo")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		s.writeError(w, r, domain.Wrap(domain.KindValidation, err, "read photo"))
		return
	default:
		defer file.Close()
		url, err := s.photos.Save(r.Context(), header.Filename, file)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		report.PhotoURL = url
	}

	created, err := s.svc.CreateReport(r.Context(), report)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCreated(w, created.ID)
}

func (s *Server) handleListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.svc.ListStations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StationsToCollection(stations))
}

func (s *Server) handleGetStation(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.GetStation(r.Context(), r.PathValue("gaugeId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StationToFeature(st))
}

// handleUpsertStation stores a station Feature under the gauge ID in the path,
// which overrides any gauge_id in the body.
func (s *Server) handleUpsertStation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, bodyError(err))
		return
	}

	st, err := domain.DecodeStationInput(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st.GaugeID = r.PathValue("gaugeId")

	stored, err := s.svc.UpsertStation(r.Context(), st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.StationToFeature(stored))
}

func writeCreated(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "success",
		"message": createdResponse,
		"id":      id,
	})
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.Errorf(domain.KindValidation, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return domain.Wrap(domain.KindValidation, err, "read request body")
}

// writeError maps an error kind onto an HTTP status and body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)

	switch {
	case kind.IsClientError():
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "kind": string(kind)})
	case kind == domain.KindNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case kind == domain.KindBackendRejected:
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case kind == domain.KindBackendUnavailable:
		s.logger.Warn("backend unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": err.Error(),
			"kind":    string(kind),
		})
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("internal error: %v", err),
		})
	}
}
