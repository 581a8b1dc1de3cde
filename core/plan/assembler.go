package plan

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/model"
)

// ErrAssemblyInconsistency marks a solver result that violates the problem it
// was produced for: out-of-bound setpoints, broken state dynamics or an
// aggregate outside the tolerance band. It always indicates a defect in model
// construction or solver interfacing, never an operational condition.
var ErrAssemblyInconsistency = errors.New("assembly inconsistency")

// numTol absorbs floating point noise when re-checking solver output against
// exact bounds. Scaled by the magnitude of the bound being checked.
const numTol = 1e-6

// Input carries one solver result back into domain space.
type Input struct {
	Portfolio string
	Problem   *Problem
	Status    model.SolveStatus
	Objective float64
	X         []float64
	Solver    string
}

// Assemble maps a successful solver result back onto assets and periods,
// re-validates every bound the problem encoded and returns the immutable
// schedule. Callers must only pass usable results; everything else is a
// programming error, not an assembly defect.
func Assemble(in Input) (model.Schedule, error) {
	p := in.Problem
	if p == nil {
		return model.Schedule{}, fmt.Errorf("assemble: nil problem")
	}
	if !in.Status.Usable() {
		return model.Schedule{}, fmt.Errorf("assemble: status %s carries no plan", in.Status)
	}
	if len(in.X) != p.NumVars() {
		return model.Schedule{}, fmt.Errorf("%w: result has %d values, problem has %d variables",
			ErrAssemblyInconsistency, len(in.X), p.NumVars())
	}

	n := p.Horizon.Len()
	sched := model.Schedule{
		ID:          uuid.NewString(),
		Portfolio:   in.Portfolio,
		Horizon:     p.Horizon,
		SetpointsKW: make(map[string][]float64, len(p.Envelopes)),
		AggregateKW: make([]float64, n),
		Objective:   in.Objective,
		Status:      in.Status,
		Solver:      in.Solver,
		CreatedAt:   time.Now().UTC(),
	}

	for _, e := range p.Envelopes {
		setpoints := make([]float64, n)
		for t := 0; t < n; t++ {
			var pow float64
			if e.Stateful {
				c := in.X[mustLookup(p, VarCharge, e.AssetID, t)]
				d := in.X[mustLookup(p, VarDischarge, e.AssetID, t)]
				if c < -scaled(0) || d < -scaled(0) {
					return model.Schedule{}, fmt.Errorf("%w: asset %s period %d has negative flow (charge %f, discharge %f)",
						ErrAssemblyInconsistency, e.AssetID, t, c, d)
				}
				pow = c - d
			} else {
				pow = in.X[mustLookup(p, VarPower, e.AssetID, t)]
			}
			if pow < e.MinPowerKW[t]-scaled(e.MinPowerKW[t]) || pow > e.MaxPowerKW[t]+scaled(e.MaxPowerKW[t]) {
				return model.Schedule{}, fmt.Errorf("%w: asset %s period %d setpoint %.6f outside [%.6f, %.6f]",
					ErrAssemblyInconsistency, e.AssetID, t, pow, e.MinPowerKW[t], e.MaxPowerKW[t])
			}
			setpoints[t] = pow
			sched.AggregateKW[t] += pow
		}
		if e.Stateful {
			if err := checkStateDynamics(p, e, in.X); err != nil {
				return model.Schedule{}, err
			}
		}
		if err := checkRamp(e.AssetID, e.RampKW, setpoints); err != nil {
			return model.Schedule{}, err
		}
		sched.SetpointsKW[e.AssetID] = setpoints
	}

	for _, tr := range p.Tracks {
		for t := 0; t < n; t++ {
			dev := math.Abs(sched.AggregateKW[t] - tr.TargetKW[t])
			if dev > tr.ToleranceKW[t]+scaled(tr.TargetKW[t]) {
				return model.Schedule{}, fmt.Errorf("%w: product %s period %d deviates %.6f kW, band is %.6f",
					ErrAssemblyInconsistency, tr.Product, t, dev, tr.ToleranceKW[t])
			}
		}
	}
	return sched, nil
}

// checkStateDynamics replays the transition equation from the initial state
// and verifies both the state bounds and the solver's own state variables.
func checkStateDynamics(p *Problem, e flex.Envelope, x []float64) error {
	state := e.InitialStateKWh
	for t := 0; t < p.Horizon.Len(); t++ {
		hours := p.Horizon.Period(t).Hours()
		c := x[mustLookup(p, VarCharge, e.AssetID, t)]
		d := x[mustLookup(p, VarDischarge, e.AssetID, t)]
		state += e.EfficiencyIn*c*hours - d*hours/e.EfficiencyOut
		if state < e.MinStateKWh-scaled(e.MinStateKWh) || state > e.MaxStateKWh+scaled(e.MaxStateKWh) {
			return fmt.Errorf("%w: asset %s period %d state %.6f kWh outside [%.6f, %.6f]",
				ErrAssemblyInconsistency, e.AssetID, t, state, e.MinStateKWh, e.MaxStateKWh)
		}
		solved := x[mustLookup(p, VarState, e.AssetID, t)]
		if math.Abs(solved-state) > scaled(state) {
			return fmt.Errorf("%w: asset %s period %d solver state %.6f diverges from replayed %.6f",
				ErrAssemblyInconsistency, e.AssetID, t, solved, state)
		}
	}
	return nil
}

func checkRamp(assetID string, ramp float64, setpoints []float64) error {
	if ramp <= 0 {
		return nil
	}
	for t := 1; t < len(setpoints); t++ {
		if math.Abs(setpoints[t]-setpoints[t-1]) > ramp+scaled(ramp) {
			return fmt.Errorf("%w: asset %s period %d ramps %.6f kW, limit is %.6f",
				ErrAssemblyInconsistency, assetID, t, math.Abs(setpoints[t]-setpoints[t-1]), ramp)
		}
	}
	return nil
}

func mustLookup(p *Problem, kind VarKind, asset string, period int) int {
	idx, ok := p.Lookup(kind, asset, -1, period)
	if !ok {
		panic(fmt.Sprintf("problem has no %s variable for %s period %d", kind, asset, period))
	}
	return idx
}

func scaled(bound float64) float64 {
	m := math.Abs(bound)
	if m < 1 {
		m = 1
	}
	return numTol * m
}
