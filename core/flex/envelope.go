// Package flex normalizes heterogeneous asset snapshots into solver-ready
// flexibility envelopes: per-period power bounds plus, for storage, the state
// dynamics that couple periods together.
package flex

import (
	"errors"
	"fmt"
	"time"

	"github.com/volteq/flexplan/core/model"
)

var (
	// ErrInvalidAssetSpec marks an asset whose declared parameters are
	// contradictory, such as inverted bounds or efficiencies outside (0, 1].
	ErrInvalidAssetSpec = errors.New("invalid asset spec")

	// ErrIncompleteAssetData marks an asset whose class requires a forecast
	// series that is missing or does not cover the horizon.
	ErrIncompleteAssetData = errors.New("incomplete asset data")
)

// Envelope is the uniform flexibility description the model builder consumes.
// All power values are signed with consumption positive; index i refers to
// horizon period i.
type Envelope struct {
	AssetID string
	Class   model.AssetClass

	MinPowerKW []float64
	MaxPowerKW []float64

	// CostPerKWh is the marginal cost per period, nil when the asset came
	// without a cost forecast.
	CostPerKWh []float64

	// Storage coupling. Only read when Stateful is true.
	Stateful        bool
	MinStateKWh     float64
	MaxStateKWh     float64
	InitialStateKWh float64
	EfficiencyIn    float64
	EfficiencyOut   float64

	// RampKW limits the setpoint change between adjacent periods, 0 = none.
	RampKW float64
}

// Periods returns the number of horizon periods the envelope covers.
func (e Envelope) Periods() int { return len(e.MinPowerKW) }

// Controllable reports whether any period leaves room to steer the asset.
func (e Envelope) Controllable() bool {
	for i := range e.MinPowerKW {
		if e.MaxPowerKW[i] > e.MinPowerKW[i] {
			return true
		}
	}
	return e.Stateful
}

// Build derives the envelope of one asset over the horizon. Class-specific
// rules decide the per-period bounds:
//
//   - storage: the full signed range, pinned to 0 when unavailable
//   - curtailable load: [0, baseline], pinned to baseline when unavailable
//   - dispatchable generator: the declared (non-positive) range, pinned to 0
//     when unavailable
//   - baseload: pinned to its baseline in every period
//
// Unit mismatches and contradictions surface as ErrInvalidAssetSpec, missing
// forecast coverage as ErrIncompleteAssetData. Nothing is ever coerced.
func Build(a model.Asset, h model.Horizon) (Envelope, error) {
	if err := a.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidAssetSpec, err)
	}
	if err := classSpecific(a); err != nil {
		return Envelope{}, err
	}
	if len(a.Availability) > 0 && !overlapsHorizon(a, h) {
		return Envelope{}, fmt.Errorf("%w: asset %s has no availability inside [%s, %s)",
			ErrInvalidAssetSpec, a.ID, h.Start(), h.End())
	}

	n := h.Len()
	e := Envelope{
		AssetID:    a.ID,
		Class:      a.Class,
		MinPowerKW: make([]float64, n),
		MaxPowerKW: make([]float64, n),
		RampKW:     a.RampKW,
	}
	if a.Stateful() {
		e.Stateful = true
		e.MinStateKWh = a.MinStateKWh
		e.MaxStateKWh = a.MaxStateKWh
		e.InitialStateKWh = a.InitialStateKWh
		e.EfficiencyIn = a.EfficiencyIn
		e.EfficiencyOut = a.EfficiencyOut
	}

	baseline, err := series(a.ID, "baseline", a.BaselineKW, h, needsBaseline(a.Class))
	if err != nil {
		return Envelope{}, err
	}
	e.CostPerKWh, err = series(a.ID, "cost", a.CostPerKWh, h, false)
	if err != nil {
		return Envelope{}, err
	}

	for i := 0; i < n; i++ {
		p := h.Period(i)
		avail := a.AvailableDuring(p)
		switch a.Class {
		case model.ClassStorage:
			if avail {
				e.MinPowerKW[i], e.MaxPowerKW[i] = a.MinPowerKW, a.MaxPowerKW
			}
			// pinned to 0: a disconnected store neither charges nor discharges
		case model.ClassCurtailableLoad:
			b := baseline[i]
			if b < 0 {
				return Envelope{}, fmt.Errorf("%w: asset %s baseline %.3f kW negative in period %d",
					ErrInvalidAssetSpec, a.ID, b, i)
			}
			if avail {
				e.MinPowerKW[i], e.MaxPowerKW[i] = 0, b
			} else {
				e.MinPowerKW[i], e.MaxPowerKW[i] = b, b
			}
		case model.ClassDispatchableGenerator:
			if avail {
				e.MinPowerKW[i], e.MaxPowerKW[i] = a.MinPowerKW, a.MaxPowerKW
			}
		case model.ClassBaseload:
			e.MinPowerKW[i], e.MaxPowerKW[i] = baseline[i], baseline[i]
		default:
			return Envelope{}, fmt.Errorf("%w: asset %s has unknown class %d", ErrInvalidAssetSpec, a.ID, a.Class)
		}
	}
	return e, nil
}

// BuildAll derives envelopes for a whole portfolio snapshot. The first bad
// asset aborts the build: partial portfolios must never reach the solver.
func BuildAll(assets []model.Asset, h model.Horizon) ([]Envelope, error) {
	envs := make([]Envelope, 0, len(assets))
	for _, a := range assets {
		e, err := Build(a, h)
		if err != nil {
			return nil, err
		}
		envs = append(envs, e)
	}
	return envs, nil
}

func needsBaseline(c model.AssetClass) bool {
	return c == model.ClassCurtailableLoad || c == model.ClassBaseload
}

func classSpecific(a model.Asset) error {
	switch a.Class {
	case model.ClassCurtailableLoad, model.ClassBaseload:
		if a.MinPowerKW < 0 {
			return fmt.Errorf("%w: asset %s is a load but declares production (min power %.3f kW)",
				ErrInvalidAssetSpec, a.ID, a.MinPowerKW)
		}
	case model.ClassDispatchableGenerator:
		if a.MaxPowerKW > 0 {
			return fmt.Errorf("%w: asset %s is a generator but declares consumption (max power %.3f kW)",
				ErrInvalidAssetSpec, a.ID, a.MaxPowerKW)
		}
	}
	return nil
}

func overlapsHorizon(a model.Asset, h model.Horizon) bool {
	for i := 0; i < h.Len(); i++ {
		if a.AvailableDuring(h.Period(i)) {
			return true
		}
	}
	return false
}

// series resolves a per-period forecast against the horizon. Points are keyed
// by exact period start; a required series missing a period is an
// ErrIncompleteAssetData. Optional empty series resolve to nil.
func series(assetID, name string, points []model.SeriesPoint, h model.Horizon, required bool) ([]float64, error) {
	if len(points) == 0 {
		if required {
			return nil, fmt.Errorf("%w: asset %s has no %s series", ErrIncompleteAssetData, assetID, name)
		}
		return nil, nil
	}
	byStart := make(map[time.Time]float64, len(points))
	for _, pt := range points {
		byStart[pt.Start.UTC()] = pt.Value
	}
	out := make([]float64, h.Len())
	for i := 0; i < h.Len(); i++ {
		v, ok := byStart[h.Period(i).Start.UTC()]
		if !ok {
			return nil, fmt.Errorf("%w: asset %s %s series misses period starting %s",
				ErrIncompleteAssetData, assetID, name, h.Period(i).Start)
		}
		out[i] = v
	}
	return out, nil
}
