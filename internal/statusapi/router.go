package statusapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/replica"
)

// NewRouter builds the status API's chi router.
//
// Routes:
//   - GET /status   - this replica's view/op/commit numbers and lifecycle status
//   - GET /metrics  - Prometheus scrape endpoint, when reg is non-nil
func NewRouter(r *replica.Replica, reg *prometheus.Registry) http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(5 * time.Second))

	statusHandler := NewStatusHandler(r)
	mux.Get("/status", statusHandler.Get)

	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return mux
}

// requestLogger logs each request's method/path/status/duration using
// the package-level logger, the way the teacher's pkg/api.requestLogger
// does for its own control-plane router.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("status API request",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}
