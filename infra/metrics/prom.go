package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/volteq/flexplan/core/metrics"
)

// PromSink records planning events in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	pubs      *prometheus.CounterVec
	deviation *prometheus.GaugeVec
	fallbacks *prometheus.CounterVec
}

// NewPromSink registers planning metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_run_events_total",
		Help: "Total number of finished planning runs",
	}, []string{"portfolio", "status", "solver", "relaxed"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plan_run_duration_seconds",
		Help:    "Wall-clock duration of planning runs end to end",
		Buckets: prometheus.DefBuckets,
	}, []string{"portfolio", "solver"})
	pubs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_publication_events_total",
		Help: "Total number of schedule publications",
	}, []string{"portfolio", "stale"})
	deviation := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plan_publication_deviation_kw",
		Help: "Largest tracking gap of the most recent publication",
	}, []string{"portfolio"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_fallback_events_total",
		Help: "Total number of degradations: relaxed retries and stale re-emissions",
	}, []string{"portfolio", "relaxed"})

	if err := reg.Register(runs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			runs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(pubs); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			pubs = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(deviation); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			deviation = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fallbacks); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fallbacks = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{runs: runs, duration: duration, pubs: pubs, deviation: deviation, fallbacks: fallbacks}, nil
}

// RecordRun increments the run counter and observes the run duration.
func (s *PromSink) RecordRun(rec coremetrics.RunRecord) error {
	s.runs.WithLabelValues(rec.Portfolio, rec.Status.String(), rec.Solver, strconv.FormatBool(rec.Relaxed)).Inc()
	s.duration.WithLabelValues(rec.Portfolio, rec.Solver).Observe(rec.Duration.Seconds())
	return nil
}

// RecordPublication counts the emission and tracks the latest deviation.
func (s *PromSink) RecordPublication(rec coremetrics.PublicationRecord) error {
	s.pubs.WithLabelValues(rec.Portfolio, strconv.FormatBool(rec.Stale)).Inc()
	if !rec.Stale {
		s.deviation.WithLabelValues(rec.Portfolio).Set(rec.MaxDeviationKW)
	}
	return nil
}

// RecordFallback counts degradation decisions.
func (s *PromSink) RecordFallback(rec coremetrics.FallbackRecord) error {
	s.fallbacks.WithLabelValues(rec.Portfolio, strconv.FormatBool(rec.Relaxed)).Inc()
	return nil
}
