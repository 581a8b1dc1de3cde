package model

import "time"

// Run records one planning invocation end to end: what triggered it, the
// inputs it snapshotted, how the solver finished and which schedule (if any)
// came out of it. Runs are append-only history.
type Run struct {
	ID        string  `json:"id"`
	Portfolio string  `json:"portfolio"`
	Trigger   Trigger `json:"trigger"`
	Seq       uint64  `json:"seq"` // publication sequence the run was assigned

	HorizonStart time.Time `json:"horizon_start"`
	HorizonEnd   time.Time `json:"horizon_end"`
	Periods      int       `json:"periods"`
	Assets       int       `json:"assets"`
	Products     int       `json:"products"`

	// Relaxed marks the one-shot retry with a widened tolerance band.
	Relaxed bool `json:"relaxed"`

	Status     SolveStatus `json:"status"`
	Objective  float64     `json:"objective"`
	ScheduleID string      `json:"schedule_id,omitempty"` // empty when the run produced no usable schedule
	Err        string      `json:"err,omitempty"`         // cause when the run failed before or during solving

	// Source labels the producer of the record, so mixed histories stay
	// attributable.
	Source string `json:"source,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall-clock length of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run ended with a publishable schedule.
func (r Run) Succeeded() bool {
	return r.Err == "" && r.Status.Usable() && r.ScheduleID != ""
}
