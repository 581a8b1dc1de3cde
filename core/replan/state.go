// Package replan drives the planning lifecycle for one portfolio: it accepts
// triggers, coalesces bursts, runs the build/solve/assemble pipeline under a
// time budget and publishes the resulting schedule. Failed runs degrade in
// order: one relaxed retry, then re-emission of the last-known-good schedule
// marked stale.
package replan

// State is the controller lifecycle position. Transitions follow the
// planning pipeline; anything else indicates a controller defect.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSolving
	StateAssembling
	StatePublished
	StateFailed
	StateStale
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSolving:
		return "solving"
	case StateAssembling:
		return "assembling"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// transitions lists the states reachable from each state. A cancelled solve
// returns to Building for the restarted run; terminal run states lead back
// to Building when the next trigger arrives, or to Idle when none is pending.
var transitions = map[State][]State{
	StateIdle:       {StateBuilding},
	StateBuilding:   {StateSolving, StateFailed},
	StateSolving:    {StateAssembling, StateBuilding, StateFailed},
	StateAssembling: {StatePublished, StateFailed},
	StatePublished:  {StateBuilding, StateIdle},
	StateFailed:     {StateStale, StateBuilding, StateIdle},
	StateStale:      {StateBuilding, StateIdle},
}

// CanEnter reports whether next is a legal successor of s.
func (s State) CanEnter(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
