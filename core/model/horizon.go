package model

import (
	"fmt"
	"time"
)

// Period is a single settlement interval of a planning horizon.
type Period struct {
	Start    time.Time
	Duration time.Duration
}

// End returns the exclusive end of the period.
func (p Period) End() time.Time { return p.Start.Add(p.Duration) }

// Hours returns the period length in hours, the factor used to convert
// between power (kW) and energy (kWh).
func (p Period) Hours() float64 { return p.Duration.Hours() }

// Horizon is an ordered sequence of contiguous settlement periods. Once a
// planning run starts its horizon never changes; re-planning builds a new one.
type Horizon struct {
	periods []Period
}

// NewHorizon validates that the periods are contiguous, strictly ordered and
// of positive length, and returns the resulting horizon.
func NewHorizon(periods []Period) (Horizon, error) {
	if len(periods) == 0 {
		return Horizon{}, fmt.Errorf("horizon requires at least one period")
	}
	for i, p := range periods {
		if p.Duration <= 0 {
			return Horizon{}, fmt.Errorf("period %d: duration %s is not positive", i, p.Duration)
		}
		if i > 0 && !p.Start.Equal(periods[i-1].End()) {
			return Horizon{}, fmt.Errorf("period %d: starts at %s, previous ends at %s", i, p.Start, periods[i-1].End())
		}
	}
	cp := make([]Period, len(periods))
	copy(cp, periods)
	return Horizon{periods: cp}, nil
}

// Rolling builds a uniform horizon of count periods at the given resolution.
// The first period starts at `at` truncated down to a resolution boundary, so
// successive rollovers aligned to the same resolution produce aligned horizons.
func Rolling(at time.Time, resolution time.Duration, count int) (Horizon, error) {
	if resolution <= 0 {
		return Horizon{}, fmt.Errorf("resolution %s is not positive", resolution)
	}
	if count <= 0 {
		return Horizon{}, fmt.Errorf("period count %d is not positive", count)
	}
	start := at.UTC().Truncate(resolution)
	periods := make([]Period, count)
	for i := range periods {
		periods[i] = Period{Start: start.Add(time.Duration(i) * resolution), Duration: resolution}
	}
	return Horizon{periods: periods}, nil
}

// Len returns the number of periods.
func (h Horizon) Len() int { return len(h.periods) }

// Period returns the i-th period. It panics when i is out of range, matching
// slice semantics.
func (h Horizon) Period(i int) Period { return h.periods[i] }

// Periods returns a copy of the period sequence.
func (h Horizon) Periods() []Period {
	cp := make([]Period, len(h.periods))
	copy(cp, h.periods)
	return cp
}

// Start returns the start of the first period. Zero for an empty horizon.
func (h Horizon) Start() time.Time {
	if len(h.periods) == 0 {
		return time.Time{}
	}
	return h.periods[0].Start
}

// End returns the exclusive end of the last period. Zero for an empty horizon.
func (h Horizon) End() time.Time {
	if len(h.periods) == 0 {
		return time.Time{}
	}
	return h.periods[len(h.periods)-1].End()
}

// Index returns the position of the period starting at t, or -1 when no
// period starts exactly there.
func (h Horizon) Index(t time.Time) int {
	for i, p := range h.periods {
		if p.Start.Equal(t) {
			return i
		}
	}
	return -1
}

// Equal reports whether two horizons cover the same periods.
func (h Horizon) Equal(other Horizon) bool {
	if len(h.periods) != len(other.periods) {
		return false
	}
	for i, p := range h.periods {
		if !p.Start.Equal(other.periods[i].Start) || p.Duration != other.periods[i].Duration {
			return false
		}
	}
	return true
}
