// Package metrics exposes Prometheus counters for batch runs and an
// optional status HTTP server for watching a run from outside the
// terminal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for a mailmerge process.
type Metrics struct {
	EmailsSentTotal    prometheus.Counter
	EmailsFailedTotal  *prometheus.CounterVec
	EmailsSkippedTotal *prometheus.CounterVec

	QuotaRemaining  prometheus.Gauge
	HistorySize     prometheus.Gauge
	RunDurationSecs prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailmerge_emails_sent_total",
				Help: "Total number of successfully submitted emails",
			},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmerge_emails_failed_total",
				Help: "Total number of failed send attempts",
			},
			[]string{"reason"},
		),
		EmailsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailmerge_emails_skipped_total",
				Help: "Total number of rows skipped before dispatch",
			},
			[]string{"reason"},
		),

		QuotaRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailmerge_quota_remaining",
				Help: "Sends left under today's daily limit",
			},
		),
		HistorySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailmerge_history_size",
				Help: "Number of addresses in the sent-history store",
			},
		),
		RunDurationSecs: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailmerge_run_duration_seconds",
				Help:    "Wall-clock duration of complete dispatch runs",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsSkippedTotal,
		m.QuotaRemaining,
		m.HistorySize,
		m.RunDurationSecs,
	)

	return m
}

// Registry returns the Prometheus registry for the promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ReasonRejected labels per-recipient send failures.
const ReasonRejected = "rejected"

// Skip reason labels.
const (
	ReasonAlreadySent = "already_sent"
	ReasonNoEmail     = "no_email"
	ReasonQuota       = "quota"
)
