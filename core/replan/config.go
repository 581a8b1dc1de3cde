package replan

import (
	"fmt"
	"time"
)

// Config defines replanning settings for one portfolio.
type Config struct {
	// Periods is the number of slots in the rolling horizon.
	Periods int `json:"periods"`
	// ResolutionMinutes is the slot length.
	ResolutionMinutes int `json:"resolution_minutes"`
	// SolveBudgetMS caps one solver invocation.
	SolveBudgetMS int `json:"solve_budget_ms"`
	// CoalesceWindowMS is how long an accepted trigger waits for follow-up
	// triggers before the run starts.
	CoalesceWindowMS int `json:"coalesce_window_ms"`
	// RelaxFactor widens tolerance bands for the retry after an infeasible
	// run, as a fraction of the absolute target. Zero disables the retry.
	RelaxFactor float64 `json:"relax_factor"`
	// Combination selects how overlapping product requirements merge:
	// "additive" or "separate". There is no default: a deployment with
	// more than one product must set it explicitly, runs fail otherwise.
	Combination string `json:"combination"`
	// RolloverMinutes starts a periodic run when no trigger arrived, zero
	// disables the timer.
	RolloverMinutes int `json:"rollover_minutes"`
}

// Normalize fills defaults and validates the result.
func (c *Config) Normalize() error {
	if c.Periods == 0 {
		c.Periods = 24
	}
	if c.ResolutionMinutes == 0 {
		c.ResolutionMinutes = 15
	}
	if c.SolveBudgetMS == 0 {
		c.SolveBudgetMS = 2000
	}
	if c.CoalesceWindowMS == 0 {
		c.CoalesceWindowMS = 250
	}
	if c.RelaxFactor == 0 {
		c.RelaxFactor = 0.1
	}
	if c.Periods < 0 || c.ResolutionMinutes < 0 || c.SolveBudgetMS < 0 ||
		c.CoalesceWindowMS < 0 || c.RolloverMinutes < 0 {
		return fmt.Errorf("replan config: negative values not allowed")
	}
	if c.RelaxFactor < 0 {
		return fmt.Errorf("replan config: relax_factor must not be negative")
	}
	return nil
}

// Resolution returns the slot length as a duration.
func (c Config) Resolution() time.Duration {
	return time.Duration(c.ResolutionMinutes) * time.Minute
}

// SolveBudget returns the solver budget as a duration.
func (c Config) SolveBudget() time.Duration {
	return time.Duration(c.SolveBudgetMS) * time.Millisecond
}

// CoalesceWindow returns the trigger settling window as a duration.
func (c Config) CoalesceWindow() time.Duration {
	return time.Duration(c.CoalesceWindowMS) * time.Millisecond
}

// RolloverInterval returns the periodic replanning interval, zero when
// disabled.
func (c Config) RolloverInterval() time.Duration {
	return time.Duration(c.RolloverMinutes) * time.Minute
}
