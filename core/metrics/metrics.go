package metrics

import (
	"time"

	"github.com/volteq/flexplan/core/model"
)

// RunRecord captures one finished planning run.
type RunRecord struct {
	RunID     string
	Portfolio string
	Trigger   model.TriggerKind
	Status    model.SolveStatus
	Solver    string
	Objective float64
	Periods   int
	Assets    int
	Relaxed   bool
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records planning runs for observability purposes.
type MetricsSink interface {
	RecordRun(rec RunRecord) error
}

// PublicationRecord captures one schedule emission.
type PublicationRecord struct {
	Portfolio      string
	ScheduleID     string
	Seq            uint64
	Stale          bool
	MaxDeviationKW float64
	// PlannedKWh is the net energy of the emitted schedule over its horizon,
	// consumption positive.
	PlannedKWh float64
	Time       time.Time
}

// PublicationRecorder is implemented by sinks able to record publications.
type PublicationRecorder interface {
	RecordPublication(rec PublicationRecord) error
}

// FallbackRecord captures one degradation decision: a relaxed retry or the
// re-emission of the last-known-good schedule.
type FallbackRecord struct {
	Portfolio string
	RunID     string
	Relaxed   bool
	Reason    string
	Time      time.Time
}

// FallbackRecorder is implemented by sinks able to record degradations.
type FallbackRecorder interface {
	RecordFallback(rec FallbackRecord) error
}

// TriggerRecord captures one accepted trigger and how many queued triggers
// were folded into it.
type TriggerRecord struct {
	Portfolio string
	Kind      model.TriggerKind
	Coalesced int
	Time      time.Time
}

// TriggerRecorder is implemented by sinks able to record trigger intake.
type TriggerRecorder interface {
	RecordTrigger(rec TriggerRecord) error
}

// NopSink implements every record kind with no-ops.
type NopSink struct{}

func (NopSink) RecordRun(RunRecord) error                 { return nil }
func (NopSink) RecordPublication(PublicationRecord) error { return nil }
func (NopSink) RecordTrigger(TriggerRecord) error         { return nil }
func (NopSink) RecordFallback(FallbackRecord) error       { return nil }
