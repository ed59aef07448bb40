// Package metrics exposes the Prometheus collectors for the hachiq API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hachiq_api_build_info",
			Help: "Build information of the hachiq API",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hachiq_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hachiq_api_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hachiq_api_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hachiq_api_questions_total",
			Help: "Total number of natural-language questions by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hachiq_api_pipeline_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	ValidatorRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hachiq_api_validator_rejections_total",
			Help: "Total number of statements rejected by the validator, by rule",
		},
		[]string{"rule"},
	)
)

// Question outcomes recorded against QuestionsTotal.
const (
	OutcomeAnswered         = "answered"
	OutcomeSuperseded       = "superseded"
	OutcomeGenerationFailed = "generation_failed"
	OutcomeExecutionFailed  = "execution_failed"
	OutcomeRejected         = "rejected"
	OutcomeError            = "error"
)

// Pipeline stages recorded against StageDuration.
const (
	StageGenerate = "generate"
	StageExecute  = "execute"
	StageNarrate  = "narrate"
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordQuestion counts a finished question and observes its per-stage
// timings.
func RecordQuestion(outcome string, generateMS, executeMS, narrateMS int64) {
	QuestionsTotal.WithLabelValues(outcome).Inc()
	StageDuration.WithLabelValues(StageGenerate).Observe(float64(generateMS) / 1000)
	StageDuration.WithLabelValues(StageExecute).Observe(float64(executeMS) / 1000)
	StageDuration.WithLabelValues(StageNarrate).Observe(float64(narrateMS) / 1000)
}
