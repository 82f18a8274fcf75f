// Package metrics exposes Prometheus instrumentation for the budget engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cbg"

// Metrics holds the engine's collectors, registered on an injected registry.
type Metrics struct {
	evaluations   *prometheus.CounterVec
	budgetUsage   *prometheus.GaugeVec
	alertsIssued  *prometheus.CounterVec
	alertsSkipped *prometheus.CounterVec

	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec

	batchDuration prometheus.Histogram
	batchFailures prometheus.Counter
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_evaluations_total",
				Help:      "Total number of budget evaluations",
			},
			[]string{"result"},
		),

		budgetUsage: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_usage_percentage",
				Help:      "Percentage of budget used in the current period at last evaluation",
			},
			[]string{"tenant_id", "budget_id"},
		),

		alertsIssued: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_issued_total",
				Help:      "Total number of budget alerts created",
			},
			[]string{"alert_type"},
		),

		alertsSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_skipped_total",
				Help:      "Over-threshold evaluations that did not create an alert",
			},
			[]string{"reason"},
		),

		deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_deliveries_total",
				Help:      "Alert delivery attempts per channel and outcome",
			},
			[]string{"channel", "outcome"},
		),

		deliveryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "alert_delivery_duration_seconds",
				Help:      "Duration of alert delivery attempts",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"channel"},
		),

		batchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_all_duration_seconds",
				Help:      "Duration of tenant-wide check runs",
				Buckets:   prometheus.DefBuckets,
			},
		),

		batchFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_all_budget_failures_total",
				Help:      "Budgets that failed inside tenant-wide check runs",
			},
		),
	}
}

// RecordEvaluation records one evaluation and, on success, the usage gauge.
func (m *Metrics) RecordEvaluation(tenantID, budgetID string, pct float64, err error) {
	if err != nil {
		m.evaluations.WithLabelValues("error").Inc()
		return
	}
	m.evaluations.WithLabelValues("ok").Inc()
	m.budgetUsage.WithLabelValues(tenantID, budgetID).Set(pct)
}

// RecordAlertIssued counts a newly created alert.
func (m *Metrics) RecordAlertIssued(alertType string) {
	m.alertsIssued.WithLabelValues(alertType).Inc()
}

// RecordAlertSkipped counts an over-threshold check that created no alert.
// reason is "duplicate" or "stale".
func (m *Metrics) RecordAlertSkipped(reason string) {
	m.alertsSkipped.WithLabelValues(reason).Inc()
}

// RecordDelivery records one channel attempt.
func (m *Metrics) RecordDelivery(channel, outcome string, seconds float64) {
	m.deliveries.WithLabelValues(channel, outcome).Inc()
	if outcome != "skipped" {
		m.deliveryDuration.WithLabelValues(channel).Observe(seconds)
	}
}

// RecordBatch records a tenant-wide run.
func (m *Metrics) RecordBatch(seconds float64, failures int) {
	m.batchDuration.Observe(seconds)
	m.batchFailures.Add(float64(failures))
}
