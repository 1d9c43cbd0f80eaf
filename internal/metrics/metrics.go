package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	Admissions      *prometheus.CounterVec
	StreamOutcomes  *prometheus.CounterVec
	BackendFailures *prometheus.CounterVec
	ChunksForwarded prometheus.Counter
	SessionsEnded   prometheus.Counter
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_admissions_total",
				Help: "Quota gate decisions by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		StreamOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conversation_replies_total",
				Help: "Replies by delivery mode and terminal state",
			},
			[]string{"mode", "state"},
		),
		BackendFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_failures_total",
				Help: "Generation backend failures by provider and phase",
			},
			[]string{"provider", "phase"},
		),
		ChunksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_chunks_forwarded_total",
			Help: "Reply chunks forwarded to callers",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sessions_ended_total",
			Help: "Sessions closed by the idle sweeper or their owner",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAdmission(planID string, admitted bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if admitted {
		outcome = "admitted"
	}
	m.Admissions.WithLabelValues(planID, outcome).Inc()
}

func (m *Metrics) ObserveReply(mode, state string) {
	if m == nil {
		return
	}
	m.StreamOutcomes.WithLabelValues(mode, state).Inc()
}

func (m *Metrics) ObserveBackendFailure(provider, phase string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(provider, phase).Inc()
}

func (m *Metrics) ObserveChunk() {
	if m == nil {
		return
	}
	m.ChunksForwarded.Inc()
}

func (m *Metrics) ObserveSessionsEnded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEnded.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latencies keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
