// Package metrics exposes Prometheus instrumentation for the HTTP API,
// ingestion and search.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "embedbase"

// Metrics owns a private registry and the service's collectors.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	documentsTotal  *prometheus.CounterVec
	batchesTotal    prometheus.Counter
	searchesTotal   prometheus.Counter
	searchMatches   prometheus.Histogram

	registry *prometheus.Registry
}

var _ ingestion.Recorder = (*Metrics)(nil)

// New creates a Metrics with Go runtime and process collectors registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents seen by the ingestion pipeline, by outcome",
		},
		[]string{"outcome"},
	)
	m.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Ingestion batches completed",
	})
	m.searchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Search queries answered",
	})
	m.searchMatches = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "matches",
		Help:      "Matches returned per search",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.documentsTotal,
		m.batchesTotal,
		m.searchesTotal,
		m.searchMatches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordIngest implements ingestion.Recorder.
func (m *Metrics) RecordIngest(stats ingestion.Stats) {
	m.batchesTotal.Inc()
	m.documentsTotal.WithLabelValues("submitted").Add(float64(stats.Submitted))
	m.documentsTotal.WithLabelValues("reused").Add(float64(stats.Reused))
	m.documentsTotal.WithLabelValues("embedded").Add(float64(stats.Embedded))
	m.documentsTotal.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	m.documentsTotal.WithLabelValues("written").Add(float64(stats.Written))
}

// RecordSearch counts one answered query.
func (m *Metrics) RecordSearch(matches int) {
	m.searchesTotal.Inc()
	m.searchMatches.Observe(float64(matches))
}

// Middleware records request counts and latency by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
