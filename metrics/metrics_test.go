package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrument_LabelsByRoutePattern(t *testing.T) {
	m := get()
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/api/deputies/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(m.requests.WithLabelValues("GET /api/deputies/{name}", "4xx"))

	// WHEN: Two different names hit the same route
	for _, name := range []string{"Ayers", "Brandt"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deputies/"+name, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	// THEN: Both are counted under the pattern, not the raw path
	after := testutil.ToFloat64(m.requests.WithLabelValues("GET /api/deputies/{name}", "4xx"))
	assert.Equal(t, before+2, after)
}

func TestInstrument_ImplicitOK(t *testing.T) {
	m := get()
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(m.requests.WithLabelValues("GET /ok", "2xx"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(m.requests.WithLabelValues("GET /ok", "2xx")))
}

func TestDomainCounters(t *testing.T) {
	m := get()

	before := testutil.ToFloat64(m.materialized)
	Materialized(3)
	Materialized(0)
	assert.Equal(t, before+3, testutil.ToFloat64(m.materialized))

	okBefore := testutil.ToFloat64(m.schedulerRuns.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(m.schedulerRuns.WithLabelValues("error"))
	SchedulerRun(nil)
	SchedulerRun(errors.New("boom"))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.schedulerRuns.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(m.schedulerRuns.WithLabelValues("error")))
}

func TestHandler_ExposesInstruments(t *testing.T) {
	CarryForward("success")
	DeputyUpsert("success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `roster_carry_forward_total{status="success"}`))
	assert.True(t, strings.Contains(body, `roster_deputy_upserts_total{status="success"}`))
}

func TestResultClass(t *testing.T) {
	assert.Equal(t, "2xx", ResultClass(http.StatusCreated))
	assert.Equal(t, "4xx", ResultClass(http.StatusBadRequest))
	assert.Equal(t, "5xx", ResultClass(http.StatusServiceUnavailable))
}
