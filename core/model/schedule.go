package model

import "time"

// SolveStatus is the business-level outcome of a solver invocation.
type SolveStatus int

const (
	StatusUnknown SolveStatus = iota
	StatusOptimal
	StatusFeasible
	StatusInfeasible
	StatusUnbounded
	StatusSolverError
)

// String returns a human-readable representation of the status.
func (s SolveStatus) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFeasible:
		return "feasible"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusSolverError:
		return "solver_error"
	default:
		return "unknown"
	}
}

// Usable reports whether the status carries a publishable plan.
func (s SolveStatus) Usable() bool {
	return s == StatusOptimal || s == StatusFeasible
}

// Schedule is the validated output of one planning run: a power setpoint for
// every asset and period of the horizon. A schedule is immutable once
// assembled; re-planning replaces it with a new one.
type Schedule struct {
	ID        string
	Portfolio string
	Horizon   Horizon

	// SetpointsKW maps asset ID to one setpoint per horizon period, signed
	// with consumption positive.
	SetpointsKW map[string][]float64

	// AggregateKW is the portfolio sum per period.
	AggregateKW []float64

	Objective float64
	Status    SolveStatus
	Solver    string
	CreatedAt time.Time
}

// Setpoint returns the planned power of one asset in one period, or 0 when
// the asset is not part of the schedule.
func (s Schedule) Setpoint(assetID string, period int) float64 {
	sp, ok := s.SetpointsKW[assetID]
	if !ok || period < 0 || period >= len(sp) {
		return 0
	}
	return sp[period]
}

// Clone returns a deep copy, so publishers and caches can hold the schedule
// without sharing slices with the controller.
func (s Schedule) Clone() Schedule {
	cp := s
	cp.SetpointsKW = make(map[string][]float64, len(s.SetpointsKW))
	for id, vals := range s.SetpointsKW {
		v := make([]float64, len(vals))
		copy(v, vals)
		cp.SetpointsKW[id] = v
	}
	cp.AggregateKW = make([]float64, len(s.AggregateKW))
	copy(cp.AggregateKW, s.AggregateKW)
	return cp
}
