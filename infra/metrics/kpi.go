package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	core "github.com/volteq/flexplan/core/metrics"
	kpi "github.com/volteq/flexplan/core/metrics/kpi"
)

// KPISink aggregates publications into daily delivery KPIs.
type KPISink struct {
	store    kpi.Store
	planned  *prometheus.GaugeVec
	stale    *prometheus.GaugeVec
	worstDev *prometheus.GaugeVec
}

// NewKPISink creates a sink with Prometheus gauges registered on reg.
func NewKPISink(store kpi.Store, reg prometheus.Registerer) *KPISink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	planned := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_planned_energy_kwh",
		Help: "Daily net planned energy per portfolio",
	}, []string{"portfolio", "day"})
	stale := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_stale_publication_ratio",
		Help: "Daily share of stale publications per portfolio",
	}, []string{"portfolio", "day"})
	worst := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portfolio_worst_deviation_kw",
		Help: "Daily worst tracking deviation per portfolio",
	}, []string{"portfolio", "day"})
	reg.MustRegister(planned, stale, worst)
	return &KPISink{store: store, planned: planned, stale: stale, worstDev: worst}
}

// RecordRun implements the base sink interface; runs carry no delivery KPIs.
func (s *KPISink) RecordRun(core.RunRecord) error { return nil }

// RecordPublication folds the emission into the daily aggregate and updates
// the gauges.
func (s *KPISink) RecordPublication(rec core.PublicationRecord) error {
	add := kpi.Record{
		Portfolio:        rec.Portfolio,
		Date:             rec.Time,
		Publications:     1,
		WorstDeviationKW: rec.MaxDeviationKW,
	}
	if rec.Stale {
		add.Stale = 1
	} else {
		add.PlannedKWh = rec.PlannedKWh
	}
	if err := s.store.Add(add); err != nil {
		return err
	}
	records, _ := s.store.Query(rec.Portfolio, rec.Time, rec.Time)
	if len(records) > 0 {
		r := records[0]
		dayStr := kpi.Day(r.Date).Format("2006-01-02")
		s.planned.WithLabelValues(rec.Portfolio, dayStr).Set(r.PlannedKWh)
		s.stale.WithLabelValues(rec.Portfolio, dayStr).Set(r.StaleRatio())
		s.worstDev.WithLabelValues(rec.Portfolio, dayStr).Set(r.WorstDeviationKW)
	}
	return nil
}
