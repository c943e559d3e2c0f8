// Package metrics provides Prometheus instrumentation for the frontier
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/frontier/internal/modules/optimization"
)

var (
	// SolvesTotal counts finished solves by kind and terminal status.
	SolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontier_solves_total",
		Help: "Total number of optimizer solves",
	}, []string{"kind", "status"})

	// SolveDuration tracks how long individual solves take.
	SolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontier_solve_duration_seconds",
		Help:    "Optimizer solve duration in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.1, 1.0},
	}, []string{"kind"})

	// SolveIterations tracks how many iterations solves need.
	SolveIterations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontier_solve_iterations",
		Help:    "Optimizer iterations per solve",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500, 1000, 5000},
	}, []string{"kind"})

	// FrontierRequestsTotal counts frontier computations by outcome.
	FrontierRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontier_requests_total",
		Help: "Total frontier computations",
	}, []string{"endpoint", "outcome"})

	// WebSocketClients tracks connected streaming clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frontier_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frontier_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frontier_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// SolveRecorder exports every solve it observes to Prometheus.
type SolveRecorder struct{}

// NewSolveRecorder creates a solve recorder.
func NewSolveRecorder() *SolveRecorder {
	return &SolveRecorder{}
}

// ObserveSolve implements optimization.SolveObserver.
func (SolveRecorder) ObserveSolve(kind string, sol optimization.Solution, elapsed time.Duration) {
	SolvesTotal.WithLabelValues(kind, sol.Status.String()).Inc()
	SolveDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	SolveIterations.WithLabelValues(kind).Observe(float64(sol.Iterations))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// chi's wrapper keeps http.Hijacker working for websocket upgrades
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
