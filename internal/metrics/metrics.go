// Package metrics exposes Prometheus collectors that report trial run
// coordinator activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for runs_completed_total.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// Metrics holds the coordinator collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	staleOutcomes  prometheus.Counter
	cancelRequests prometheus.Counter
	runDuration    prometheus.Histogram
	runsActive     prometheus.Gauge
}

// MustNewMetrics constructs Metrics registered with reg (the default
// registerer when nil). A collector that is already registered is reused;
// any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		runsStarted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "runs_started_total",
			Help:      "Total number of trial runs started.",
		})),
		runsCompleted: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "runs_completed_total",
			Help:      "Tracked trial runs that reached a terminal outcome.",
		}, []string{"outcome"})),
		staleOutcomes: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "stale_outcomes_total",
			Help:      "Run outcomes discarded because a newer run superseded them or the coordinator was closed.",
		})),
		cancelRequests: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "cancel_requests_total",
			Help:      "Cancel requests forwarded to a tracked run.",
		})),
		runDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "run_duration_seconds",
			Help:      "Time from start to terminal outcome for tracked runs.",
			Buckets:   prometheus.DefBuckets,
		})),
		runsActive: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trialrun",
			Subsystem: "coordinator",
			Name:      "runs_active",
			Help:      "Runs whose await goroutine has not returned yet.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunStarted counts a started run and marks it active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
	m.runsActive.Inc()
}

// RunFinished marks a run's await goroutine as returned, tracked or not.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.runsActive.Dec()
}

// ObserveOutcome records the terminal outcome of the tracked run.
func (m *Metrics) ObserveOutcome(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// IncStale counts a discarded outcome.
func (m *Metrics) IncStale() {
	if m == nil {
		return
	}
	m.staleOutcomes.Inc()
}

// IncCancelRequest counts a forwarded cancel.
func (m *Metrics) IncCancelRequest() {
	if m == nil {
		return
	}
	m.cancelRequests.Inc()
}
