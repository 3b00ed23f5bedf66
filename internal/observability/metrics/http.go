package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics instruments the HTTP surface and the retrieval pipeline
// behind it.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal   *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	returnedDocs   *prometheus.HistogramVec
	rerankBackends *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jurisrag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jurisrag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jurisrag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jurisrag",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Total ranking pipeline executions by outcome.",
		},
		[]string{"service", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jurisrag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "stage"},
	)
	returnedDocs := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jurisrag",
			Subsystem: "pipeline",
			Name:      "returned_docs",
			Help:      "Distribution of documents returned per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 11, 15, 20},
		},
		[]string{"service"},
	)
	rerankBackends := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jurisrag",
			Subsystem: "pipeline",
			Name:      "rerank_backend_total",
			Help:      "Queries served per reranking backend, including fallbacks.",
		},
		[]string{"service", "backend"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		stageDuration,
		returnedDocs,
		rerankBackends,
	)

	m := &HTTPServerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		queriesTotal:    queriesTotal,
		stageDuration:   stageDuration,
		returnedDocs:    returnedDocs,
		rerankBackends:  rerankBackends,
	}
	m.service = service
	return m
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/sources/"):
		return "/v1/sources/{source_id}"
	default:
		return path
	}
}

// ObserveStage implements the engine's metrics hook.
func (m *HTTPServerMetrics) ObserveStage(stage string, seconds float64) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(seconds)
}

// IncQueries implements the engine's metrics hook.
func (m *HTTPServerMetrics) IncQueries(status string) {
	m.queriesTotal.WithLabelValues(m.service, status).Inc()
}

func (m *HTTPServerMetrics) ObserveReturnedDocs(count int) {
	m.returnedDocs.WithLabelValues(m.service).Observe(float64(count))
}

func (m *HTTPServerMetrics) RecordRerankBackend(backend string) {
	m.rerankBackends.WithLabelValues(m.service, backend).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
