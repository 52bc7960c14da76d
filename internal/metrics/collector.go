package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
)

// AuditSource is the read side of the audit log the collector scrapes.
type AuditSource interface {
	Len() int
	Capacity() int
	Metrics(now time.Time) audit.Metrics
}

// AuditCollector exports audit log gauges computed at scrape time.
type AuditCollector struct {
	source AuditSource

	stored    *prometheus.Desc
	capacity  *prometheus.Desc
	errorRate *prometheus.Desc
	perMinute *prometheus.Desc
}

// NewAuditCollector creates a collector over source. Register it with a
// prometheus.Registerer.
func NewAuditCollector(source AuditSource) *AuditCollector {
	return &AuditCollector{
		source: source,
		stored: prometheus.NewDesc(
			"couchdb_mcp_audit_events_stored",
			"Number of audit events currently retained", nil, nil),
		capacity: prometheus.NewDesc(
			"couchdb_mcp_audit_capacity",
			"Maximum number of audit events retained", nil, nil),
		errorRate: prometheus.NewDesc(
			"couchdb_mcp_audit_error_rate",
			"Fraction of retained audit events with an error result", nil, nil),
		perMinute: prometheus.NewDesc(
			"couchdb_mcp_audit_operations_per_minute",
			"Audit events recorded in the last minute", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *AuditCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stored
	ch <- c.capacity
	ch <- c.errorRate
	ch <- c.perMinute
}

// Collect implements prometheus.Collector.
func (c *AuditCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.source.Metrics(time.Time{})
	ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(c.source.Len()))
	ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(c.source.Capacity()))
	ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, m.ErrorRate)
	ch <- prometheus.MustNewConstMetric(c.perMinute, prometheus.GaugeValue, float64(m.OperationsPerMinute))
}
