package kpi

import "time"

// Record aggregates delivery KPIs for a portfolio and day.
type Record struct {
	Portfolio        string
	Date             time.Time
	PlannedKWh       float64
	Publications     int
	Stale            int
	WorstDeviationKW float64
}

// StaleRatio returns the share of publications that re-emitted an old plan.
func (r Record) StaleRatio() float64 {
	if r.Publications == 0 {
		return 0
	}
	return float64(r.Stale) / float64(r.Publications)
}
