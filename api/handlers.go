/*
handlers.go - HTTP API handlers for the court roster

PURPOSE:
  Exposes the staffing log, assignment materializer and deputy directory
  via a JSON API. Handles HTTP request/response, validation and error
  mapping, and delegates everything else to the domain packages.

ENDPOINTS:
  Assignments:
    GET    /api/search                          Search (seeds the date first)
    POST   /api/assignments/materialize         Materialize a day
    PUT    /api/assignments                     Assign member / notes to a slot
    GET    /api/assignments/coverage            Filled vs open slots
    GET    /api/templates                       List templates
    POST   /api/templates                       Create or replace a template

  Staffing:
    GET    /api/staffing?as_of=                 Grid as of a date
    GET    /api/staffing/cells                  Fact written exactly on a date
    PUT    /api/staffing/cells                  Write a cell
    POST   /api/staffing/carry-forward          Copy a column forward
    GET    /api/staffing/export?date=           xlsx workbook

  Status / deputies:
    POST   /api/status/resolve                  Resolve a raw stored payload
    GET    /api/deputies                        List with effective status
    POST   /api/deputies                        Upsert
    GET    /api/deputies/{name}                 Get
    DELETE /api/deputies/{name}                 Delete
    GET    /api/deputies/{name}/status          Effective status on ?date=
    PUT    /api/deputies/{name}/status          Set legacy status
    POST   /api/deputies/{name}/status/ranges   Add dated range
    DELETE /api/deputies/{name}/status/ranges   Remove dated range

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed dates, failed validation, bad JSON
  - 404: Unknown deputy or assignment slot
  - 500: Storage failures (logged with the request id)

SECURITY NOTE:
  No authentication. Deploy behind the courthouse gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/export"
	"github.com/warp/court-roster/metrics"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/status"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Staffing    *staffing.Log
	Assignments *assignment.Service
	Directory   *directory.Directory
	Exporter    *export.Exporter
	Health      Pinger

	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler over the domain services.
func NewHandler(
	log *staffing.Log,
	assignments *assignment.Service,
	dir *directory.Directory,
	exporter *export.Exporter,
	health Pinger,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Staffing:    log,
		Assignments: assignments,
		Directory:   dir,
		Exporter:    exporter,
		Health:      health,
		logger:      logger.Named("api"),
		validate:    newValidator(),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// Search returns assignments filtered by name, date and courthouse.
// A date in the filter materializes that day first.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	day, err := queryDate(r, "date", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.fail(w, r, &roster.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
	}

	results, err := h.Assignments.Search(r.Context(), assignment.Filter{
		Name:       q.Get("name"),
		Date:       day,
		Courthouse: q.Get("courthouse"),
		Limit:      limit,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]AssignmentDTO, len(results))
	for i, a := range results {
		dtos[i] = toAssignmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Materialize seeds a day from the templates.
func (h *Handler) Materialize(w http.ResponseWriter, r *http.Request) {
	var req MaterializeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := roster.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	inserted, err := h.Assignments.EnsureDay(r.Context(), day)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MaterializeResponse{Date: day.String(), Inserted: inserted})
}

// Assign updates the member and/or notes of one slot.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := roster.ParseDate(req.AssignmentDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	key := assignment.SlotKey{
		Date:           day,
		Courthouse:     req.Courthouse,
		AssignmentType: req.AssignmentType,
		Location:       req.LocationDetail,
		Part:           req.Part,
	}
	if key.ByGroup() {
		key.Location = req.LocationGroup
	}

	update := assignment.Update{AssignedMember: req.AssignedMember, AssignmentNotes: req.AssignmentNotes}
	if err := h.Assignments.Assign(r.Context(), key, update); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Coverage reports filled and open slots for a day.
func (h *Handler) Coverage(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cov, err := h.Assignments.Coverage(r.Context(), day, r.URL.Query().Get("courthouse"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(cov))
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Assignments.Templates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]TemplateDTO, len(templates))
	for i, t := range templates {
		dtos[i] = toTemplateDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateDTO
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	id, err := h.Assignments.SaveTemplate(r.Context(), req.template())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	code := http.StatusOK
	if req.ID == 0 {
		code = http.StatusCreated
	}
	req.ID = id
	writeJSON(w, code, req)
}

// =============================================================================
// STAFFING HANDLERS
// =============================================================================

// ReadStaffing returns the grid as of ?as_of=.
func (h *Handler) ReadStaffing(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	cells, err := h.Staffing.ReadEffective(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StaffingDTO{AsOf: asOf.String(), Cells: cells})
}

// LookupCell returns the fact written exactly on ?date= for ?row=&column=.
func (h *Handler) LookupCell(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := strconv.Atoi(r.URL.Query().Get("row"))
	if err != nil {
		h.fail(w, r, &roster.ValidationError{Field: "row", Message: "must be an integer"})
		return
	}

	rec, err := h.Staffing.Lookup(r.Context(), day, row, r.URL.Query().Get("column"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, r, http.StatusNotFound, "No staffing record for that date", nil)
		return
	}

	writeJSON(w, http.StatusOK, StaffingCellDTO{
		StaffingDate: rec.Date.String(),
		RowNumber:    rec.Row,
		ColumnName:   rec.Column,
		DeputyName:   rec.DeputyName,
	})
}

// WriteCell records one staffing fact.
func (h *Handler) WriteCell(w http.ResponseWriter, r *http.Request) {
	var req WriteCellRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	day, err := roster.ParseDate(req.StaffingDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.Staffing.Write(r.Context(), day, req.RowNumber, req.ColumnName, req.DeputyName); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// CarryForward copies a column from the latest earlier date with data.
func (h *Handler) CarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := roster.ParseDate(req.TargetDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Staffing.CarryForward(r.Context(), target, req.ColumnName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.CarryForward(string(res.Status))

	resp := CarryForwardResponse{Status: string(res.Status), Copied: res.Copied}
	if !res.SourceDate.IsZero() {
		resp.SourceDate = res.SourceDate.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportStaffing streams the roster workbook for ?date=.
func (h *Handler) ExportStaffing(w http.ResponseWriter, r *http.Request) {
	day, err := queryDate(r, "date", true)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	buf, filename, err := h.Exporter.Workbook(r.Context(), day)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("export write interrupted", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
	}
}

// =============================================================================
// STATUS HANDLERS
// =============================================================================

// ResolveStatus resolves a raw stored payload against an optional date.
// Any payload text is accepted; malformed content simply has no status.
func (h *Handler) ResolveStatus(w http.ResponseWriter, r *http.Request) {
	var req ResolveStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	on, err := roster.ParseOptionalDate(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var resp ResolveStatusResponse
	if req.Payload != nil {
		if s, ok := status.ResolveRaw(*req.Payload, on); ok {
			resp.Status = &s
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// DEPUTY HANDLERS
// =============================================================================

// ListDeputies returns every deputy with its status on ?date=. Without a
// date the legacy status is shown.
func (h *Handler) ListDeputies(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "date", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	deputies, err := h.Directory.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]DeputyDTO, len(deputies))
	for i, d := range deputies {
		dtos[i] = toDeputyDTO(d, directory.Effective(d, on))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertDeputy creates or updates a deputy. Attributes the schema cannot
// hold are reported in "dropped" rather than failing the request.
func (h *Handler) UpsertDeputy(w http.ResponseWriter, r *http.Request) {
	var req UpsertDeputyRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Directory.Upsert(r.Context(), req.FullName, directory.Attrs{
		Email:       req.Email,
		CapacityTag: req.CapacityTag,
		Division:    req.Division,
		Rank:        req.Rank,
	}, req.OriginalFullName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	metrics.DeputyUpsert(string(res.Status))

	resp := UpsertDeputyResponse{Status: string(res.Status), Persisted: res.Persisted, Dropped: res.Dropped}
	if resp.Dropped == nil {
		resp.Dropped = []string{}
	}

	code := http.StatusOK
	if res.Status == directory.UpsertNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, resp)
}

func (h *Handler) GetDeputy(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "date", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dep, err := h.Directory.Get(r.Context(), deputyName(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if dep == nil {
		h.fail(w, r, roster.ErrDeputyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toDeputyDTO(*dep, directory.Effective(*dep, on)))
}

func (h *Handler) DeleteDeputy(w http.ResponseWriter, r *http.Request) {
	found, err := h.Directory.Delete(r.Context(), deputyName(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		h.fail(w, r, roster.ErrDeputyNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDeputyStatus returns the effective status on ?date=.
func (h *Handler) GetDeputyStatus(w http.ResponseWriter, r *http.Request) {
	on, err := queryDate(r, "date", false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	view, err := h.Directory.EffectiveStatus(r.Context(), deputyName(r), on)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view == nil {
		h.fail(w, r, roster.ErrDeputyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(*view))
}

func (h *Handler) SetLegacyStatus(w http.ResponseWriter, r *http.Request) {
	var req SetLegacyStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	name := deputyName(r)
	found, err := h.Directory.SetLegacyStatus(r.Context(), name, req.Status)
	h.respondStatus(w, r, name, found, err)
}

func (h *Handler) AddStatusRange(w http.ResponseWriter, r *http.Request) {
	var req StatusRangeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	name := deputyName(r)
	found, err := h.Directory.AddStatusRange(r.Context(), name, req.statusRange())
	h.respondStatus(w, r, name, found, err)
}

func (h *Handler) RemoveStatusRange(w http.ResponseWriter, r *http.Request) {
	var req StatusRangeRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	name := deputyName(r)
	found, err := h.Directory.RemoveStatusRange(r.Context(), name, req.statusRange())
	h.respondStatus(w, r, name, found, err)
}

// respondStatus answers a status edit with the stored payload.
func (h *Handler) respondStatus(w http.ResponseWriter, r *http.Request, name string, found bool, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !found {
		h.fail(w, r, roster.ErrDeputyNotFound)
		return
	}

	view, err := h.Directory.EffectiveStatus(r.Context(), name, roster.Date{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view == nil {
		h.fail(w, r, roster.ErrDeputyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(*view))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, message string, err error) {
	resp := ErrorResponse{Error: message, RequestID: RequestIDFrom(r.Context())}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, code, resp)
}

// fail maps a domain error onto an HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     "Validation failed",
			Fields:    fields,
			RequestID: RequestIDFrom(r.Context()),
		})

	case roster.IsClientError(err):
		writeError(w, r, http.StatusBadRequest, "Invalid request", err)

	case roster.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, "Not found", err)

	default:
		h.logger.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "Internal error", nil)
	}
}

// decode reads a JSON body into dst and runs its validation tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &roster.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	return h.validate.Struct(dst)
}

// queryDate parses a YYYY-MM-DD query parameter. An absent optional
// parameter yields the zero Date.
func queryDate(r *http.Request, key string, required bool) (roster.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		if required {
			return roster.Date{}, &roster.ValidationError{Field: key, Message: "date is required"}
		}
		return roster.Date{}, nil
	}
	return roster.ParseDate(raw)
}

// deputyName returns the {name} path parameter. Names may contain
// escaped slashes, in which case chi hands back the raw segment.
func deputyName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if r.URL.RawPath != "" {
		if name, err := url.PathUnescape(raw); err == nil {
			return name
		}
	}
	return raw
}
