package main

import (
	"math"
	"sync"
	"time"
)

// Battery models a storage asset. Positive power charges (consumption),
// negative power discharges (injection), matching the planner's sign
// convention.
type Battery struct {
	CapacityKWh    float64
	StateKWh       float64
	MaxChargeKW    float64 // positive bound on charging power
	MaxDischargeKW float64 // positive bound on discharging power
	EfficiencyIn   float64
	EfficiencyOut  float64
	mu             sync.Mutex
}

// ApplyPower runs the battery at powerKW for dt, clamped to rate and energy
// bounds. It returns the power actually applied.
func (b *Battery) ApplyPower(powerKW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 {
		return 0
	}
	effIn, effOut := b.EfficiencyIn, b.EfficiencyOut
	if effIn <= 0 || effIn > 1 {
		effIn = 1
	}
	if effOut <= 0 || effOut > 1 {
		effOut = 1
	}

	actual := powerKW
	if powerKW > 0 { // charging
		if actual > b.MaxChargeKW {
			actual = b.MaxChargeKW
		}
		room := b.CapacityKWh - b.StateKWh
		stored := actual * hours * effIn
		if stored > room {
			stored = room
			actual = stored / (hours * effIn)
		}
		b.StateKWh += stored
	} else if powerKW < 0 { // discharging
		p := math.Abs(powerKW)
		if p > b.MaxDischargeKW {
			p = b.MaxDischargeKW
		}
		drained := p * hours / effOut
		if drained > b.StateKWh {
			drained = b.StateKWh
			p = drained * effOut / hours
		}
		b.StateKWh -= drained
		actual = -p
	}

	if b.StateKWh < 0 {
		b.StateKWh = 0
	}
	if b.StateKWh > b.CapacityKWh {
		b.StateKWh = b.CapacityKWh
	}
	return actual
}

// State returns the current stored energy.
func (b *Battery) State() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StateKWh
}
