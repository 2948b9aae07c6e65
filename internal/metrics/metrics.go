// Package metrics exposes Prometheus counters and histograms for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "insights"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploads         *prometheus.CounterVec
	uploadBytes     prometheus.Histogram
	analyses        *prometheus.CounterVec
	analysisTime    prometheus.Histogram
	payloadChars    prometheus.Histogram
	truncations     prometheus.Counter
	treeWarnings    *prometheus.CounterVec
	llmTokens       *prometheus.CounterVec
	llmCost         prometheus.Counter
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"route", "method"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Stored uploads by media type.",
		}, []string{"content_type"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of stored uploads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Analysis attempts by outcome.",
		}, []string{"outcome"}),
		analysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end duration of successful analyses.",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		payloadChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payload_chars",
			Help:      "Characters sent to the analysis model.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_truncations_total",
			Help:      "Analyses whose payload was cut to the character budget.",
		}),
		treeWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_warnings_total",
			Help:      "Recovered structural defects by kind.",
		}, []string{"kind"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the analysis model.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_estimated_cost_usd_total",
			Help:      "Estimated model spend in USD.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration,
		m.uploads, m.uploadBytes,
		m.analyses, m.analysisTime, m.payloadChars, m.truncations, m.treeWarnings,
		m.llmTokens, m.llmCost,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency keyed by chi route pattern,
// so path parameters don't explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveUpload records a stored upload.
func (m *Metrics) ObserveUpload(contentType string, size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(contentType).Inc()
	m.uploadBytes.Observe(float64(size))
}

// Analysis is what a successful analysis reports.
type Analysis struct {
	Duration     time.Duration
	PayloadChars int
	Truncated    bool
	Warnings     map[string]int
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         decimal.Decimal
}

// ObserveAnalysis records a successful analysis.
func (m *Metrics) ObserveAnalysis(a Analysis) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues("ok").Inc()
	m.analysisTime.Observe(a.Duration.Seconds())
	m.payloadChars.Observe(float64(a.PayloadChars))
	if a.Truncated {
		m.truncations.Inc()
	}
	for kind, n := range a.Warnings {
		m.treeWarnings.WithLabelValues(kind).Add(float64(n))
	}
	m.llmTokens.WithLabelValues(a.Model, "input").Add(float64(a.InputTokens))
	m.llmTokens.WithLabelValues(a.Model, "output").Add(float64(a.OutputTokens))
	m.llmCost.Add(a.Cost.InexactFloat64())
}

// ObserveAnalysisFailure records a failed analysis under a short outcome
// label such as "validation" or "upstream_retryable".
func (m *Metrics) ObserveAnalysisFailure(outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
}
