package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics records checkout outcomes. A nil receiver or an unregistered
// instance is a no-op, so tests and dev mode can skip the registry.
type SaleMetrics struct {
	duration *prometheus.HistogramVec
	success  prometheus.Counter
	failure  *prometheus.CounterVec
}

// NewSaleMetrics registers the sale metrics on the provided registerer.
func NewSaleMetrics(reg prometheus.Registerer) *SaleMetrics {
	if reg == nil {
		return &SaleMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sale_commit_duration_seconds",
		Help:    "Duration of sale commits in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	success := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_processed_total",
		Help: "Successfully committed sales.",
	})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Failed sale attempts by reason.",
	}, []string{"reason"})
	reg.MustRegister(duration, success, failure)
	return &SaleMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveCommit records the duration of one checkout attempt.
func (m *SaleMetrics) ObserveCommit(outcome string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncProcessed increments the committed sale counter.
func (m *SaleMetrics) IncProcessed() {
	if m == nil || m.success == nil {
		return
	}
	m.success.Inc()
}

// IncFailed increments the failure counter for the given reason.
func (m *SaleMetrics) IncFailed(reason string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
