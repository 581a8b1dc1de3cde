package model

import (
	"fmt"
	"time"
)

// AssetClass identifies the flexibility behaviour of an asset.
type AssetClass int

const (
	ClassStorage AssetClass = iota
	ClassCurtailableLoad
	ClassDispatchableGenerator
	ClassBaseload
)

// String returns a human-readable representation of the asset class.
func (c AssetClass) String() string {
	switch c {
	case ClassStorage:
		return "storage"
	case ClassCurtailableLoad:
		return "curtailable_load"
	case ClassDispatchableGenerator:
		return "dispatchable_generator"
	case ClassBaseload:
		return "baseload"
	default:
		return "unknown"
	}
}

// ParseAssetClass converts a configuration string into an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch s {
	case "storage":
		return ClassStorage, nil
	case "curtailable_load":
		return ClassCurtailableLoad, nil
	case "dispatchable_generator":
		return ClassDispatchableGenerator, nil
	case "baseload":
		return ClassBaseload, nil
	default:
		return 0, fmt.Errorf("unknown asset class %q", s)
	}
}

// Window is a half-open availability interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the window fully covers the given period.
func (w Window) Contains(p Period) bool {
	return !p.Start.Before(w.Start) && !p.End().After(w.End)
}

// SeriesPoint is one sample of a per-period forecast, keyed by period start.
type SeriesPoint struct {
	Start time.Time
	Value float64
}

// Asset is a read-only snapshot of one controllable (or merely observed)
// resource taken at the start of a planning run. Power is signed with
// consumption positive; a producing asset therefore carries negative power.
type Asset struct {
	ID    string
	Name  string
	Class AssetClass

	MinPowerKW float64 // lowest admissible setpoint in kW (most production)
	MaxPowerKW float64 // highest admissible setpoint in kW (most consumption)

	// Availability restricts when the asset may deviate from its neutral
	// behaviour. Empty means always available.
	Availability []Window

	// BaselineKW is the forecast uncontrolled consumption per period.
	// Required for curtailable loads and baseload assets.
	BaselineKW []SeriesPoint

	// CostPerKWh is an optional marginal cost forecast. Positive values make
	// consumption expensive, production valuable.
	CostPerKWh []SeriesPoint

	// Storage state. Only meaningful for ClassStorage.
	MinStateKWh     float64
	MaxStateKWh     float64
	InitialStateKWh float64
	EfficiencyIn    float64 // fraction of drawn power that reaches the store
	EfficiencyOut   float64 // fraction of released energy that reaches the grid

	// RampKW limits the setpoint change between adjacent periods. Zero means
	// unlimited.
	RampKW float64
}

// Stateful reports whether the asset carries energy state across periods.
func (a Asset) Stateful() bool { return a.Class == ClassStorage }

// Clone returns a deep copy, so registries can hand out snapshots without
// sharing slices with callers.
func (a Asset) Clone() Asset {
	cp := a
	cp.Availability = append([]Window(nil), a.Availability...)
	cp.BaselineKW = append([]SeriesPoint(nil), a.BaselineKW...)
	cp.CostPerKWh = append([]SeriesPoint(nil), a.CostPerKWh...)
	return cp
}

// AvailableDuring reports whether the asset may be steered during the whole
// period. Assets without windows are always available.
func (a Asset) AvailableDuring(p Period) bool {
	if len(a.Availability) == 0 {
		return true
	}
	for _, w := range a.Availability {
		if w.Contains(p) {
			return true
		}
	}
	return false
}

// Validate checks the parts of the snapshot that do not depend on a horizon.
// Horizon-dependent checks (baseline coverage, window overlap) belong to the
// envelope builder.
func (a Asset) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("asset id must not be empty")
	}
	if a.MinPowerKW > a.MaxPowerKW {
		return fmt.Errorf("asset %s: min power %.3f exceeds max power %.3f", a.ID, a.MinPowerKW, a.MaxPowerKW)
	}
	for _, w := range a.Availability {
		if !w.Start.Before(w.End) {
			return fmt.Errorf("asset %s: availability window ends at %s before it starts at %s", a.ID, w.End, w.Start)
		}
	}
	if a.Stateful() {
		if a.MinStateKWh > a.MaxStateKWh {
			return fmt.Errorf("asset %s: min state %.3f exceeds max state %.3f", a.ID, a.MinStateKWh, a.MaxStateKWh)
		}
		if a.InitialStateKWh < a.MinStateKWh || a.InitialStateKWh > a.MaxStateKWh {
			return fmt.Errorf("asset %s: initial state %.3f outside [%.3f, %.3f]", a.ID, a.InitialStateKWh, a.MinStateKWh, a.MaxStateKWh)
		}
		if a.EfficiencyIn <= 0 || a.EfficiencyIn > 1 {
			return fmt.Errorf("asset %s: charge efficiency %.3f outside (0, 1]", a.ID, a.EfficiencyIn)
		}
		if a.EfficiencyOut <= 0 || a.EfficiencyOut > 1 {
			return fmt.Errorf("asset %s: discharge efficiency %.3f outside (0, 1]", a.ID, a.EfficiencyOut)
		}
	}
	if a.RampKW < 0 {
		return fmt.Errorf("asset %s: ramp limit %.3f is negative", a.ID, a.RampKW)
	}
	return nil
}
