// Package metrics exposes pipeline counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/treasury/internal/events"
)

const namespace = "treasury"

// Metrics holds every collector the service exports
type Metrics struct {
	registry *prometheus.Registry

	Runs             *prometheus.CounterVec
	RowsRejected     prometheus.Counter
	RecordsCommitted prometheus.Counter
	Notifications    *prometheus.CounterVec
	Backups          *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastCommit       prometheus.Gauge
	Entities         prometheus.Gauge
	Quantity         prometheus.Gauge
}

// New creates collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status.",
		}, []string{"status"}),
		RowsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Table rows dropped during normalization.",
		}),
		RecordsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_committed_total",
			Help:      "Entity records appended to the history.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Digest deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "History backups by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one pipeline run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastCommit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_commit_timestamp_seconds",
			Help:      "Unix time of the last committed period.",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Entities in the latest snapshot.",
		}),
		Quantity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "holdings_quantity",
			Help:      "Total holdings in the latest snapshot.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Runs,
		m.RowsRejected,
		m.RecordsCommitted,
		m.Notifications,
		m.Backups,
		m.RunDuration,
		m.LastCommit,
		m.Entities,
		m.Quantity,
	)
	return m
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe updates collectors from pipeline events. Subscribe it on an events.Manager.
func (m *Metrics) Observe(e events.EventWithData) {
	switch data := e.Data.(type) {
	case *events.RowRejectedData:
		m.RowsRejected.Inc()
	case *events.PeriodCommittedData:
		m.RecordsCommitted.Add(float64(data.Records))
		m.LastCommit.Set(float64(e.Timestamp.Unix()))
	case *events.NotificationData:
		outcome := "sent"
		if data.Error != "" {
			outcome = "failed"
		}
		m.Notifications.WithLabelValues(data.Channel, outcome).Inc()
	case *events.RunFinishedData:
		m.Runs.WithLabelValues(data.Status).Inc()
		m.RunDuration.Observe(data.Seconds)
		if data.Records > 0 {
			m.Entities.Set(float64(data.Records))
			m.Quantity.Set(data.Quantity)
		}
	case *events.BackupData:
		outcome := "ok"
		if data.Error != "" {
			outcome = "failed"
		}
		m.Backups.WithLabelValues(outcome).Inc()
	}
}
