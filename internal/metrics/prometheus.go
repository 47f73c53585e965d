package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// PrometheusExporter serves live run metrics for scraping.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type PrometheusExporter struct {
	mu sync.RWMutex

	config   PrometheusExporterConfig
	registry *prometheus.Registry

	httpReqs        *prometheus.CounterVec
	httpReqDuration *prometheus.HistogramVec
	checks          *prometheus.CounterVec
	iterations      prometheus.Counter
	vus             prometheus.Gauge
	vusTarget       prometheus.Gauge
	failedRate      prometheus.Gauge
	dataReceived    prometheus.Counter

	server  *http.Server
	ln      net.Listener
	running bool

	lastError error
}

// PrometheusExporterConfig holds configuration for the Prometheus exporter.
type PrometheusExporterConfig struct {
	// Port Default: 9090
	Port int
	// Path Default: /metrics
	Path string
	// Namespace prefixes every metric. Default: hrmload
	Namespace string
	// HistogramBuckets for request duration. Default: prometheus.DefBuckets
	HistogramBuckets []float64
	// ConstLabels are attached to every metric, e.g. scenario and run_id.
	ConstLabels prometheus.Labels
}

// DefaultPrometheusExporterConfig returns default configuration.
func DefaultPrometheusExporterConfig() PrometheusExporterConfig {
	return PrometheusExporterConfig{
		Port:             9090,
		Path:             "/metrics",
		Namespace:        "hrmload",
		HistogramBuckets: prometheus.DefBuckets,
	}
}

// NewPrometheusExporter creates an exporter with its own registry.
func NewPrometheusExporter(config PrometheusExporterConfig) *PrometheusExporter {
	if config.Port == 0 {
		config.Port = 9090
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "hrmload"
	}
	if len(config.HistogramBuckets) == 0 {
		config.HistogramBuckets = prometheus.DefBuckets
	}

	e := &PrometheusExporter{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	e.initMetrics()
	return e
}

func (e *PrometheusExporter) initMetrics() {
	ns, labels := e.config.Namespace, e.config.ConstLabels

	e.httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_reqs_total", ConstLabels: labels,
		Help: "HTTP requests issued, by request name, status and whether they count as failed.",
	}, []string{"name", "method", "status", "failed"})

	e.httpReqDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_req_duration_seconds", ConstLabels: labels,
		Help:    "HTTP request duration in seconds.",
		Buckets: e.config.HistogramBuckets,
	}, []string{"name"})

	e.checks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "checks_total", ConstLabels: labels,
		Help: "Check evaluations by check name and result.",
	}, []string{"check", "result"})

	e.iterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "iterations_total", ConstLabels: labels,
		Help: "Completed scenario iterations.",
	})

	e.vus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "vus", ConstLabels: labels,
		Help: "Virtual users currently running.",
	})

	e.vusTarget = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "vus_target", ConstLabels: labels,
		Help: "Virtual users the current stage asks for.",
	})

	e.failedRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_req_failed_ratio", ConstLabels: labels,
		Help: "Share of failed requests so far (0..1).",
	})

	e.dataReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "data_received_bytes_total", ConstLabels: labels,
		Help: "Response bytes received.",
	})

	e.registry.MustRegister(
		e.httpReqs,
		e.httpReqDuration,
		e.checks,
		e.iterations,
		e.vus,
		e.vusTarget,
		e.failedRate,
		e.dataReceived,
	)
}

// Handler serves the registry plus /health.
func (e *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(e.config.Path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start starts the HTTP server for the metrics endpoint.
func (e *PrometheusExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", e.config.Port))
	if err != nil {
		return fmt.Errorf("starting Prometheus exporter: %w", err)
	}
	e.ln = ln
	e.server = &http.Server{
		Handler:           e.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.mu.Lock()
			e.lastError = err
			e.mu.Unlock()
		}
	}()

	e.running = true
	return nil
}

// Stop stops the HTTP server.
func (e *PrometheusExporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

// RecordRequest records a single request result.
func (e *PrometheusExporter) RecordRequest(result Result) {
	e.httpReqs.WithLabelValues(
		result.Name,
		result.Method,
		strconv.Itoa(result.StatusCode),
		strconv.FormatBool(result.Failed()),
	).Inc()
	e.httpReqDuration.WithLabelValues(result.Name).Observe(result.Latency.Seconds())
	e.dataReceived.Add(float64(result.ResponseSize))
}

// RecordCheck records one check evaluation.
func (e *PrometheusExporter) RecordCheck(name string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	e.checks.WithLabelValues(name, result).Inc()
}

// RecordIteration counts one iteration.
func (e *PrometheusExporter) RecordIteration() {
	e.iterations.Inc()
}

// UpdateVUs sets the running and target VU gauges.
func (e *PrometheusExporter) UpdateVUs(active, target int) {
	e.vus.Set(float64(active))
	e.vusTarget.Set(float64(target))
}

// UpdateFromSnapshot refreshes gauges derived from the collector.
func (e *PrometheusExporter) UpdateFromSnapshot(snapshot Snapshot) {
	e.failedRate.Set(snapshot.FailedRate)
}

// Address returns the URL of the metrics endpoint.
func (e *PrometheusExporter) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", e.config.Port, e.config.Path)
}

// IsRunning returns whether the exporter is running.
func (e *PrometheusExporter) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// LastError returns the last error from the HTTP server, if any.
func (e *PrometheusExporter) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastError
}

// Gather collects all metric families.
func (e *PrometheusExporter) Gather() ([]*dto.MetricFamily, error) {
	return e.registry.Gather()
}
