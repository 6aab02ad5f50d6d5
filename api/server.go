/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:  X-Request-ID from the caller, or a fresh UUID
  2. Logger:     zap access log (5xx Error, 4xx Warn, else Info)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    prometheus request count and latency per route
  5. CORS:       Origins from server.cors.allow_origins

ROUTE GROUPS:
  /api/search, /api/assignments/*, /api/templates   Assignments
  /api/staffing/*                                   Staffing log
  /api/status/*, /api/deputies/*                    Directory and status
  /metrics                                          Prometheus scrape
  /healthz                                          Storage ping

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics/metrics.go: Instrument middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", h.Search)

		// Assignment routes
		r.Route("/assignments", func(r chi.Router) {
			r.Put("/", h.Assign)
			r.Post("/materialize", h.Materialize)
			r.Get("/coverage", h.Coverage)
		})

		// Template routes
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.SaveTemplate)
		})

		// Staffing routes
		r.Route("/staffing", func(r chi.Router) {
			r.Get("/", h.ReadStaffing)
			r.Get("/cells", h.LookupCell)
			r.Put("/cells", h.WriteCell)
			r.Post("/carry-forward", h.CarryForward)
			r.Get("/export", h.ExportStaffing)
		})

		r.Post("/status/resolve", h.ResolveStatus)

		// Deputy routes
		r.Route("/deputies", func(r chi.Router) {
			r.Get("/", h.ListDeputies)
			r.Post("/", h.UpsertDeputy)
			r.Get("/{name}", h.GetDeputy)
			r.Delete("/{name}", h.DeleteDeputy)
			r.Get("/{name}/status", h.GetDeputyStatus)
			r.Put("/{name}/status", h.SetLegacyStatus)
			r.Post("/{name}/status/ranges", h.AddStatusRange)
			r.Delete("/{name}/status/ranges", h.RemoveStatusRange)
		})
	})

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

const (
	requestIDHeader = "X-Request-ID"
	requestIDMaxLen = 64
)

type requestIDKey struct{}

// RequestID takes X-Request-ID from the request or generates a UUID, and
// echoes it on the response. Overlong caller ids are replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, rid)))
	})
}

// RequestIDFrom returns the id set by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", code),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", RequestIDFrom(r.Context())),
			}

			switch {
			case code >= 500:
				logger.Error("request failed", fields...)
			case code >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}
