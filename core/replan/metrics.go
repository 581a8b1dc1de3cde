package replan

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal         *prometheus.CounterVec
	solveDuration     *prometheus.HistogramVec
	publicationsTotal *prometheus.CounterVec
	triggersTotal     *prometheus.CounterVec
	triggersCoalesced prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replan_runs_total",
			Help: "Number of finished planning runs",
		},
		[]string{"portfolio", "status", "relaxed"},
	)
	solve := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "replan_solve_duration_seconds",
			Help:    "Wall-clock duration of solver invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"portfolio"},
	)
	pubs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replan_publications_total",
			Help: "Number of schedule publications, stale re-emissions included",
		},
		[]string{"portfolio", "stale"},
	)
	trig := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replan_triggers_total",
			Help: "Number of triggers accepted for execution",
		},
		[]string{"portfolio", "kind"},
	)
	coal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "replan_triggers_coalesced_total",
			Help: "Number of triggers folded into an already queued one",
		},
	)
	return runs, solve, pubs, trig, coal
}

func init() {
	runsTotal, solveDuration, publicationsTotal, triggersTotal, triggersCoalesced = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers replan metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(runsTotal, solveDuration, publicationsTotal, triggersTotal, triggersCoalesced)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	runsTotal, solveDuration, publicationsTotal, triggersTotal, triggersCoalesced = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
