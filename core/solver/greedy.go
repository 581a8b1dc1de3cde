package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/plan"
)

// Greedy allocates the tracking target period by period, splitting the
// required power across assets in proportion to their headroom. It runs in
// linear time, never claims optimality, and serves two roles: a cheap
// stand-alone backend and the incumbent provider for budget-capped exact
// solves. Supports at most one tracking group.
type Greedy struct{}

// NewGreedy returns the heuristic backend.
func NewGreedy() *Greedy { return &Greedy{} }

// Name implements Solver.
func (g *Greedy) Name() string { return "greedy" }

// Solve implements Solver.
func (g *Greedy) Solve(ctx context.Context, p *plan.Problem, budget time.Duration) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("greedy: nil problem")
	}
	if budget <= 0 {
		return Result{}, fmt.Errorf("greedy: non-positive budget %s", budget)
	}
	if len(p.Tracks) > 1 {
		return Result{
			Status: model.StatusSolverError,
			Detail: fmt.Sprintf("greedy backend handles one tracking group, problem has %d", len(p.Tracks)),
		}, nil
	}

	n := p.Horizon.Len()
	x := make([]float64, p.NumVars())
	states := make([]float64, len(p.Envelopes))
	prev := make([]float64, len(p.Envelopes))
	for i, e := range p.Envelopes {
		states[i] = e.InitialStateKWh
	}

	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		hours := p.Horizon.Period(t).Hours()

		lo := make([]float64, len(p.Envelopes))
		hi := make([]float64, len(p.Envelopes))
		var loSum, hiSum float64
		for i, e := range p.Envelopes {
			lo[i], hi[i] = e.MinPowerKW[t], e.MaxPowerKW[t]
			if e.Stateful {
				maxCharge := (e.MaxStateKWh - states[i]) / (e.EfficiencyIn * hours)
				maxDischarge := (states[i] - e.MinStateKWh) * e.EfficiencyOut / hours
				lo[i] = math.Max(lo[i], -maxDischarge)
				hi[i] = math.Min(hi[i], maxCharge)
			}
			if e.RampKW > 0 && t > 0 {
				lo[i] = math.Max(lo[i], prev[i]-e.RampKW)
				hi[i] = math.Min(hi[i], prev[i]+e.RampKW)
			}
			if lo[i] > hi[i] {
				return Result{
					Status: model.StatusInfeasible,
					Detail: fmt.Sprintf("asset %s has empty feasible range [%f, %f] in period %d", e.AssetID, lo[i], hi[i], t),
				}, nil
			}
			loSum += lo[i]
			hiSum += hi[i]
		}

		want := loSum
		if len(p.Tracks) == 1 {
			tr := p.Tracks[0]
			feasLo := math.Max(loSum, tr.TargetKW[t]-tr.ToleranceKW[t])
			feasHi := math.Min(hiSum, tr.TargetKW[t]+tr.ToleranceKW[t])
			if feasLo > feasHi {
				return Result{
					Status: model.StatusInfeasible,
					Detail: fmt.Sprintf("portfolio range [%f, %f] misses band [%f, %f] in period %d",
						loSum, hiSum, tr.TargetKW[t]-tr.ToleranceKW[t], tr.TargetKW[t]+tr.ToleranceKW[t], t),
				}, nil
			}
			want = math.Min(math.Max(tr.TargetKW[t], feasLo), feasHi)
		} else {
			// no track: hold every asset at its most neutral feasible point
			want = 0
			for i := range p.Envelopes {
				want += math.Min(math.Max(0, lo[i]), hi[i])
			}
		}

		// lift everyone off their floor in proportion to headroom
		headroom := hiSum - loSum
		var agg float64
		for i, e := range p.Envelopes {
			pow := lo[i]
			if headroom > 0 {
				pow += (want - loSum) * (hi[i] - lo[i]) / headroom
			}
			agg += pow
			prev[i] = pow
			g.record(p, e, t, pow, &states[i], hours, x)
		}
		if len(p.Tracks) == 1 {
			tr := p.Tracks[0]
			if over, ok := p.Lookup(plan.VarSlackOver, "", 0, t); ok && agg > tr.TargetKW[t] {
				x[over] = agg - tr.TargetKW[t]
			}
			if under, ok := p.Lookup(plan.VarSlackUnder, "", 0, t); ok && agg < tr.TargetKW[t] {
				x[under] = tr.TargetKW[t] - agg
			}
		}
	}

	return Result{
		Status:    model.StatusFeasible,
		Objective: p.Objective(x),
		X:         x,
		Detail:    "greedy proportional allocation",
	}, nil
}

func (g *Greedy) record(p *plan.Problem, e flex.Envelope, t int, pow float64, state *float64, hours float64, x []float64) {
	if e.Stateful {
		charge, discharge := math.Max(pow, 0), math.Max(-pow, 0)
		ci, _ := p.Lookup(plan.VarCharge, e.AssetID, -1, t)
		di, _ := p.Lookup(plan.VarDischarge, e.AssetID, -1, t)
		si, _ := p.Lookup(plan.VarState, e.AssetID, -1, t)
		x[ci], x[di] = charge, discharge
		*state += e.EfficiencyIn*charge*hours - discharge*hours/e.EfficiencyOut
		x[si] = *state
	} else {
		pi, _ := p.Lookup(plan.VarPower, e.AssetID, -1, t)
		x[pi] = pow
	}
}
