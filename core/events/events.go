package events

import (
	"github.com/volteq/flexplan/core/model"
)

// Event is the union published on the bus; observers type-switch on the
// concrete kinds below.
type Event interface{}

// TriggerEvent is published when a trigger is accepted for execution.
// Coalesced counts the additional triggers folded into this one.
type TriggerEvent struct {
	Trigger   model.Trigger
	Coalesced int
}

// RunEvent is published whenever a planning run changes phase. Err is set
// when the phase is a failure.
type RunEvent struct {
	Portfolio string
	RunID     string
	Phase     string // controller state name, e.g. "solving"
	Status    model.SolveStatus
	Err       error
}

// PublishEvent is published after a schedule went out. Stale marks the
// re-emission of the last-known-good plan after a failed run.
type PublishEvent struct {
	Portfolio  string
	ScheduleID string
	Seq        uint64
	Stale      bool
}

// FallbackEvent is published when the controller degrades: a relaxed retry
// after an infeasible run, or falling back to the last-known-good schedule.
type FallbackEvent struct {
	Portfolio string
	RunID     string
	Relaxed   bool
	Reason    string
}
