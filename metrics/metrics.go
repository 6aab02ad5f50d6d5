/*
Package metrics exposes prometheus instruments for the roster service.

INSTRUMENTS:
  roster_http_requests_total            requests by route and result class
  roster_http_request_duration_seconds  latency by route and result class
  roster_assignments_materialized_total rows created from templates
  roster_carry_forward_total            carry-forwards by outcome
  roster_deputy_upserts_total           directory upserts by outcome
  roster_scheduler_runs_total           scheduler passes by result

  Instruments register with the default registry once per process and
  are served by Handler on /metrics.

SEE ALSO:
  - api/server.go: Instrument middleware and /metrics route
  - api/scheduler.go: Scheduler counters
*/
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roster"

type instruments struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	materialized  prometheus.Counter
	carryForward  *prometheus.CounterVec
	deputyUpserts *prometheus.CounterVec
	schedulerRuns *prometheus.CounterVec
}

var get = sync.OnceValue(func() *instruments {
	return &instruments{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests broken down by route and result.",
		}, []string{"route", "result"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"route", "result"}),
		materialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_materialized_total",
			Help:      "Court assignment rows created from templates.",
		}),
		carryForward: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carry_forward_total",
			Help:      "Staffing carry-forward operations by outcome.",
		}, []string{"status"}),
		deputyUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deputy_upserts_total",
			Help:      "Deputy directory upserts by outcome.",
		}, []string{"status"}),
		schedulerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Materialization scheduler passes by result.",
		}, []string{"result"}),
	}
})

// Handler serves the default registry.
func Handler() http.Handler {
	get()
	return promhttp.Handler()
}

// Materialized counts rows created by a materialization.
func Materialized(n int64) {
	if n > 0 {
		get().materialized.Add(float64(n))
	}
}

// CarryForward counts one carry-forward with its outcome.
func CarryForward(status string) {
	get().carryForward.WithLabelValues(status).Inc()
}

// DeputyUpsert counts one directory upsert with its outcome.
func DeputyUpsert(status string) {
	get().deputyUpserts.WithLabelValues(status).Inc()
}

// SchedulerRun counts one scheduler pass.
func SchedulerRun(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	get().schedulerRuns.WithLabelValues(result).Inc()
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

type statusRecordingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecordingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecordingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecordingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// Instrument records request count and latency per chi route pattern.
// Unmatched requests are reported under "unmatched" to bound cardinality.
func Instrument(next http.Handler) http.Handler {
	m := get()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecordingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = r.Method + " " + p
			}
		}

		result := ResultClass(rec.status)
		m.requests.WithLabelValues(route, result).Inc()
		m.latency.WithLabelValues(route, result).Observe(time.Since(start).Seconds())
	})
}

// ResultClass buckets an HTTP status code.
func ResultClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
