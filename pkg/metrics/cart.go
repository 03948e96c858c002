package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CartMetrics records cart operations and side-effect failures.
type CartMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	effects  *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_operation_duration_seconds",
		Help:    "Duration of cart operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operation_total",
		Help: "Cart operations by outcome.",
	}, []string{"operation", "outcome"})
	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_side_effect_failures_total",
		Help: "Failed side effects of cart mutations by module.",
	}, []string{"module"})
	reg.MustRegister(duration, total, effects)
	return &CartMetrics{
		duration: duration,
		total:    total,
		effects:  effects,
	}
}

// Observe records duration and outcome for one operation.
func (c *CartMetrics) Observe(operation string, started time.Time, err error) {
	if c == nil || c.duration == nil {
		return
	}
	op := normalizeLabel(operation)
	c.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.total.WithLabelValues(op, outcome).Inc()
}

// IncSideEffectFailure counts a failed side effect for the named module.
func (c *CartMetrics) IncSideEffectFailure(module string) {
	if c == nil || c.effects == nil {
		return
	}
	c.effects.WithLabelValues(normalizeLabel(module)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
