// Package metrics exposes Prometheus metrics for the database manager.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/clientdb/internal/persistence/sqlite"
)

// Collector wraps the manager's Prometheus metrics in a private registry.
// It implements clientdb.Observer.
type Collector struct {
	registry *prometheus.Registry

	Migrations          *prometheus.CounterVec
	RegisteredDatabases prometheus.Gauge
	StorageDeletions    *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry under namespace.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Migration runs by database and outcome",
		}, []string{"database", "outcome"}),
		RegisteredDatabases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_databases",
			Help:      "Number of databases in the registry",
		}),
		StorageDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_deletions_total",
			Help:      "Storage deletions by database and outcome",
		}, []string{"database", "outcome"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of inspector HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of inspector HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(c.Migrations, c.RegisteredDatabases, c.StorageDeletions, c.HTTPRequestsTotal, c.HTTPRequestDuration)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler that serves the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// MigrationApplied implements migration.Observer.
func (c *Collector) MigrationApplied(name string) {
	c.Migrations.WithLabelValues(name, "applied").Inc()
}

// MigrationSkipped implements migration.Observer.
func (c *Collector) MigrationSkipped(name string) {
	c.Migrations.WithLabelValues(name, "skipped").Inc()
}

// MigrationFailed implements migration.Observer.
func (c *Collector) MigrationFailed(name string) {
	c.Migrations.WithLabelValues(name, "failed").Inc()
}

// RegistrySize records the number of registered databases.
func (c *Collector) RegistrySize(size int) {
	c.RegisteredDatabases.Set(float64(size))
}

// StorageDeleted records a storage deletion outcome.
func (c *Collector) StorageDeleted(name string, outcome sqlite.DeleteOutcome) {
	c.StorageDeletions.WithLabelValues(name, outcome.String()).Inc()
}

// RecordHTTPRequest records an inspector request.
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
