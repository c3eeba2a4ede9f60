package lifecycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/worldgate/worldgate/pkg/world"
)

// Metrics holds the lifecycle instrumentation. A nil *Metrics is valid and
// records nothing, so wiring metrics stays optional in tests.
type Metrics struct {
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	casConflicts       prometheus.Counter
	reconcileFailures  prometheus.Counter
	sweepForcedErrors  prometheus.Counter
	worldsByStatus     *prometheus.GaugeVec
}

// NewMetrics creates and registers the lifecycle metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by event and outcome.",
		}, []string{"event", "outcome"}),
		transitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "transition_duration_seconds",
			Help:      "End-to-end duration of lifecycle transitions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"event"}),
		casConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "cas_conflicts_total",
			Help:      "Optimistic writes that lost the version race.",
		}),
		reconcileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "reconcile_failures_total",
			Help:      "Snapshot reconciliations that failed validation or fetch.",
		}),
		sweepForcedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "sweep_forced_errors_total",
			Help:      "Worlds forced into error by the background sweep.",
		}),
		worldsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "worldgate",
			Subsystem: "lifecycle",
			Name:      "worlds",
			Help:      "Number of worlds per lifecycle status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.transitions,
		m.transitionDuration,
		m.casConflicts,
		m.reconcileFailures,
		m.sweepForcedErrors,
		m.worldsByStatus,
	)
	return m
}

// ObserveTransition records one finished transition attempt.
func (m *Metrics) ObserveTransition(event, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, outcome).Inc()
	m.transitionDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// IncCASConflict records a lost optimistic write.
func (m *Metrics) IncCASConflict() {
	if m == nil {
		return
	}
	m.casConflicts.Inc()
}

// IncReconcileFailure records a failed snapshot reconciliation.
func (m *Metrics) IncReconcileFailure() {
	if m == nil {
		return
	}
	m.reconcileFailures.Inc()
}

// IncSweepForcedError records a world the sweep forced into error.
func (m *Metrics) IncSweepForcedError() {
	if m == nil {
		return
	}
	m.sweepForcedErrors.Inc()
}

// SetWorldCounts publishes the per-status world gauges. Statuses missing
// from counts are reset to zero so stale values never linger.
func (m *Metrics) SetWorldCounts(counts map[world.Status]int64) {
	if m == nil {
		return
	}
	for _, st := range world.AllStatuses {
		m.worldsByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
