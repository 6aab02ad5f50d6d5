/*
handlers_test.go - HTTP tests against the real router and SQLite store

Tests for:
- Assignment search, materialization, slot updates, coverage, templates
- Staffing writes, as-of reads, point lookups, carry-forward, export
- Raw status resolution and deputy status edits
- Directory upsert/get/delete and error mapping
- Health, metrics and request id middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/export"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log := staffing.NewLog(s, nil)
	svc := assignment.NewService(s, nil, 0)
	dir, err := directory.New(ctx, s, nil)
	require.NoError(t, err)

	h := NewHandler(log, svc, dir, export.New(log, svc, nil), s, zap.NewNop())
	return NewRouter(h, config.ServerConfig{CORS: config.CORSConfig{AllowOrigins: []string{"*"}}})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedTemplates(t *testing.T, router http.Handler) {
	t.Helper()
	for _, tpl := range []TemplateDTO{
		{Courthouse: "Supreme", AssignmentType: assignment.FixedPost, LocationGroup: "Front Door", LocationDetail: "Lobby"},
		{Courthouse: "Supreme", AssignmentType: "Courtroom", LocationDetail: "Room 410", Part: "22", JudgeName: "Hon. Ortiz"},
	} {
		rec := do(t, router, http.MethodPost, "/api/templates", tpl)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestSearch_SeedsDateThenFiltersByName(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)

	// WHEN: Searching a date that has never been materialized
	rec := do(t, router, http.MethodGet, "/api/search?date=2024-05-06", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Every template slot exists for that date
	slots := decode[[]AssignmentDTO](t, rec)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.Equal(t, "2024-05-06", s.AssignmentDate)
		assert.Empty(t, s.AssignedMember)
	}

	// WHEN: Assigning the Fixed Post slot by its location_group
	member := "Jane Ayers"
	rec = do(t, router, http.MethodPut, "/api/assignments", AssignRequest{
		AssignmentDate: "2024-05-06",
		Courthouse:     "Supreme",
		AssignmentType: assignment.FixedPost,
		LocationGroup:  "Front Door",
		AssignedMember: &member,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: A case-insensitive name search finds it
	rec = do(t, router, http.MethodGet, "/api/search?name=AYERS", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]AssignmentDTO](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, "Front Door", found[0].LocationGroup)
	assert.Equal(t, "Jane Ayers", found[0].AssignedMember)
}

func TestSearch_RejectsMalformedInput(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/api/search?date=05/06/2024",
		"/api/search?date=2024-02-30",
		"/api/search?limit=ten",
	} {
		rec := do(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)

	rec := do(t, router, http.MethodPost, "/api/assignments/materialize", MaterializeRequest{Date: "2024-05-07"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[MaterializeResponse](t, rec).Inserted)

	rec = do(t, router, http.MethodPost, "/api/assignments/materialize", MaterializeRequest{Date: "2024-05-07"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), decode[MaterializeResponse](t, rec).Inserted)
}

func TestAssign_Errors(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)
	member := "Brandt"

	// GIVEN: A slot key that matches nothing
	rec := do(t, router, http.MethodPut, "/api/assignments", AssignRequest{
		AssignmentDate: "2024-05-06",
		Courthouse:     "Supreme",
		AssignmentType: "Courtroom",
		LocationDetail: "Room 999",
		AssignedMember: &member,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// GIVEN: Required fields missing
	rec = do(t, router, http.MethodPut, "/api/assignments", AssignRequest{AssignedMember: &member})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.Contains(t, body.Fields, "assignment_date")
	assert.Contains(t, body.Fields, "courthouse")
	assert.Equal(t, "required", body.Fields["assignment_type"])

	// GIVEN: A body that is not JSON
	rec = do(t, router, http.MethodPut, "/api/assignments", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCoverage_FillRate(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)
	member := "Cole"

	rec := do(t, router, http.MethodPut, "/api/assignments", AssignRequest{
		AssignmentDate: "2024-05-08",
		Courthouse:     "Supreme",
		AssignmentType: "Courtroom",
		LocationDetail: "Room 410",
		Part:           "22",
		AssignedMember: &member,
	})
	// The day is not materialized yet, so the slot does not exist.
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/assignments/coverage?date=2024-05-08", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/assignments", AssignRequest{
		AssignmentDate: "2024-05-08",
		Courthouse:     "Supreme",
		AssignmentType: "Courtroom",
		LocationDetail: "Room 410",
		Part:           "22",
		AssignedMember: &member,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/assignments/coverage?date=2024-05-08&courthouse=Supreme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cov := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), cov["total"])
	assert.Equal(t, float64(1), cov["filled"])
	assert.Equal(t, float64(1), cov["open"])
	assert.Equal(t, "50", cov["fill_rate"])

	rec = do(t, router, http.MethodGet, "/api/assignments/coverage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplates_ListAndReplace(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)

	rec := do(t, router, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	templates := decode[[]TemplateDTO](t, rec)
	require.Len(t, templates, 2)

	// WHEN: Saving an existing id
	tpl := templates[1]
	tpl.JudgeName = "Hon. Reyes"
	rec = do(t, router, http.MethodPost, "/api/templates", tpl)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: It is replaced, not duplicated
	rec = do(t, router, http.MethodGet, "/api/templates", nil)
	templates = decode[[]TemplateDTO](t, rec)
	require.Len(t, templates, 2)
	assert.Equal(t, "Hon. Reyes", templates[1].JudgeName)

	rec = do(t, router, http.MethodPost, "/api/templates", TemplateDTO{Courthouse: "Supreme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// STAFFING
// =============================================================================

func TestStaffing_WriteReadCarryForward(t *testing.T) {
	router := newTestRouter(t)

	// GIVEN: A cell written on March 1st
	rec := do(t, router, http.MethodPut, "/api/staffing/cells", WriteCellRequest{
		StaffingDate: "2024-03-01", RowNumber: 1, ColumnName: "AM Post", DeputyName: "Ayers",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: It is still visible on March 10th
	rec = do(t, router, http.MethodGet, "/api/staffing?as_of=2024-03-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grid := decode[StaffingDTO](t, rec)
	assert.Equal(t, "2024-03-10", grid.AsOf)
	assert.Equal(t, []staffing.Cell{{Row: 1, Column: "AM Post", DeputyName: "Ayers"}}, grid.Cells)

	// THEN: But no fact was written exactly on March 10th
	rec = do(t, router, http.MethodGet, "/api/staffing/cells?date=2024-03-10&row=1&column=AM+Post", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// WHEN: Carrying the column forward to March 10th
	rec = do(t, router, http.MethodPost, "/api/staffing/carry-forward", CarryForwardRequest{
		TargetDate: "2024-03-10", ColumnName: "AM Post",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[CarryForwardResponse](t, rec)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "2024-03-01", res.SourceDate)
	assert.Equal(t, int64(1), res.Copied)

	// THEN: The fact now exists on March 10th
	rec = do(t, router, http.MethodGet, "/api/staffing/cells?date=2024-03-10&row=1&column=AM+Post", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cell := decode[StaffingCellDTO](t, rec)
	assert.Equal(t, "Ayers", cell.DeputyName)
	assert.Equal(t, "2024-03-10", cell.StaffingDate)
}

func TestStaffing_CarryForwardWithoutHistory(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/staffing/carry-forward", CarryForwardRequest{
		TargetDate: "2024-03-10", ColumnName: "PM Post",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[CarryForwardResponse](t, rec)
	assert.Equal(t, "no_previous_data", res.Status)
	assert.Empty(t, res.SourceDate)
}

func TestStaffing_Validation(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/staffing", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/staffing/cells", WriteCellRequest{
		StaffingDate: "2024-03-01", RowNumber: -1, ColumnName: "AM Post",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "gte", decode[ErrorResponse](t, rec).Fields["row_number"])

	rec = do(t, router, http.MethodGet, "/api/staffing/cells?date=2024-03-10&row=x&column=AM", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffing_Export(t *testing.T) {
	router := newTestRouter(t)
	seedTemplates(t, router)
	do(t, router, http.MethodPut, "/api/staffing/cells", WriteCellRequest{
		StaffingDate: "2024-03-01", RowNumber: 1, ColumnName: "AM Post", DeputyName: "Ayers",
	})

	rec := do(t, router, http.MethodGet, "/api/staffing/export?date=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster_2024-03-04.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(export.StaffingSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Ayers", v)
	rows, err := f.GetRows(export.AssignmentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

// =============================================================================
// STATUS
// =============================================================================

func TestResolveStatus(t *testing.T) {
	router := newTestRouter(t)
	payload := `{"legacy":"Active","ranges":[{"status":"Vacation","start_date":"2024-07-01","end_date":"2024-07-05"},{"status":"Training","start_date":"2024-07-03","end_date":"2024-07-10"}]}`

	tests := []struct {
		name    string
		payload *string
		date    string
		want    *string
	}{
		{"null payload", nil, "2024-07-02", nil},
		{"plain legacy text", strPtr("On Duty"), "", strPtr("On Duty")},
		{"no date uses legacy", strPtr(payload), "", strPtr("Active")},
		{"first matching range wins", strPtr(payload), "2024-07-04", strPtr("Vacation")},
		{"later range", strPtr(payload), "2024-07-08", strPtr("Training")},
		{"outside ranges falls back", strPtr(payload), "2024-08-01", strPtr("Active")},
		{"empty payload", strPtr(""), "2024-07-04", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/status/resolve", ResolveStatusRequest{Payload: tt.payload, Date: tt.date})
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decode[ResolveStatusResponse](t, rec).Status)
		})
	}

	rec := do(t, router, http.MethodPost, "/api/status/resolve", ResolveStatusRequest{Payload: strPtr(payload), Date: "07/04/2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func strPtr(s string) *string {
	return &s
}

// =============================================================================
// DEPUTIES
// =============================================================================

func TestDeputies_LifecycleAndStatus(t *testing.T) {
	router := newTestRouter(t)

	// GIVEN: A new deputy
	rec := do(t, router, http.MethodPost, "/api/deputies", UpsertDeputyRequest{
		FullName: "Jane Ayers", Email: "jayers@court.example", CapacityTag: "FT", Division: "North", Rank: "Sgt",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	up := decode[UpsertDeputyResponse](t, rec)
	assert.Equal(t, "success", up.Status)
	assert.Equal(t, directory.Capabilities{Division: true, Rank: true}, up.Persisted)
	assert.Empty(t, up.Dropped)

	// WHEN: Adding a vacation range and a legacy status
	rec = do(t, router, http.MethodPost, "/api/deputies/Jane%20Ayers/status/ranges", StatusRangeRequest{
		Status: "Vacation", StartDate: "2024-07-01", EndDate: "2024-07-05",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, router, http.MethodPut, "/api/deputies/Jane%20Ayers/status", SetLegacyStatusRequest{Status: "Active"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusDTO](t, rec)
	assert.Equal(t, "Active", st.Legacy)
	require.Len(t, st.Ranges, 1)

	// THEN: The effective status depends on the date
	rec = do(t, router, http.MethodGet, "/api/deputies/Jane%20Ayers/status?date=2024-07-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strPtr("Vacation"), decode[StatusDTO](t, rec).Status)

	rec = do(t, router, http.MethodGet, "/api/deputies?date=2024-07-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]DeputyDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, strPtr("Active"), list[0].Status.Status)
	assert.Equal(t, "North", list[0].Division)

	// WHEN: Removing the range
	rec = do(t, router, http.MethodDelete, "/api/deputies/Jane%20Ayers/status/ranges", StatusRangeRequest{
		Status: "Vacation", StartDate: "2024-07-01", EndDate: "2024-07-05",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[StatusDTO](t, rec).Ranges)

	// WHEN: Deleting the deputy
	rec = do(t, router, http.MethodDelete, "/api/deputies/Jane%20Ayers", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/deputies/Jane%20Ayers", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeputies_RenameAndNotFound(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, http.MethodPost, "/api/deputies", UpsertDeputyRequest{FullName: "Ayers, J"})

	// WHEN: Renaming through original_full_name
	rec := do(t, router, http.MethodPost, "/api/deputies", UpsertDeputyRequest{FullName: "Ayers, Jane", OriginalFullName: "Ayers, J"})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The new name resolves, including through an escaped path
	rec = do(t, router, http.MethodGet, "/api/deputies/Ayers%2C%20Jane", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ayers, Jane", decode[DeputyDTO](t, rec).FullName)

	// GIVEN: An original name that does not exist
	rec = do(t, router, http.MethodPost, "/api/deputies", UpsertDeputyRequest{FullName: "Nobody", OriginalFullName: "Ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[UpsertDeputyResponse](t, rec).Status)

	// Status edits on unknown deputies
	rec = do(t, router, http.MethodPut, "/api/deputies/Ghost/status", SetLegacyStatusRequest{Status: "Active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/deputies/Ghost/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/deputies/Ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed range dates are rejected at the edge
	rec = do(t, router, http.MethodPost, "/api/deputies/Ayers%2C%20Jane/status/ranges", StatusRangeRequest{
		Status: "Vacation", StartDate: "2024-13-01", EndDate: "2024-07-05",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestHealthzAndRequestID(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	// GIVEN: A caller-supplied request id
	req := httptest.NewRequest(http.MethodGet, "/api/deputies/Ghost", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// THEN: It is echoed and reported in error bodies
	assert.Equal(t, "trace-123", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "trace-123", decode[ErrorResponse](t, rec).RequestID)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, http.MethodGet, "/api/templates", nil)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `roster_http_requests_total{result="2xx",route="GET /api/templates`))
}
