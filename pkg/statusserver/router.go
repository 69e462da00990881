package statusserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/uploadkit/engine/internal/logger"
	"github.com/uploadkit/engine/pkg/store"
)

// NewRouter builds the chi router serving the local read-only status API.
//
// Routes:
//   - GET /health - liveness probe
//   - GET /health/ready - store readiness probe
//   - GET /sessions - progress snapshot for every active session
//   - GET /sessions/{id} - progress snapshot for one session
//   - GET /metrics - Prometheus exposition
//
// This server is a read-only window onto the Progress Projection (§4.8); it
// is not a control ingress. All control operations remain function-call
// based per §6.
func NewRouter(s store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	h := newHandlers(s)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.liveness)
		r.Get("/ready", h.readiness)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.sessions)
		r.Get("/{id}", h.session)
	})

	r.Get("/metrics", h.metrics.ServeHTTP)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.DebugCtx(r.Context(), "status server request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
