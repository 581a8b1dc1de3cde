package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/market"
	"github.com/volteq/flexplan/core/model"
)

var (
	// ErrEmptyPortfolio marks a build over zero assets. There is nothing to
	// decide; the caller should not have started a run.
	ErrEmptyPortfolio = errors.New("empty portfolio")

	// ErrHorizonMismatch marks inputs resolved against a different horizon
	// than the one the run planned for.
	ErrHorizonMismatch = errors.New("horizon mismatch")
)

// Builder turns envelopes and tracks into a Problem. The three weights form
// strictly separated objective layers: real energy cost dominates, the
// deviation weight pulls the aggregate onto its targets among equal-cost
// plans, the throughput weight stops storage from idling energy away, and the
// order weight makes the chosen optimum unique so identical inputs yield
// byte-identical plans.
type Builder struct {
	DeviationWeight  float64
	ThroughputWeight float64
	OrderWeight      float64
}

// NewBuilder returns a builder with the default weight layering.
func NewBuilder() Builder {
	return Builder{
		DeviationWeight:  1e-4,
		ThroughputWeight: 1e-6,
		OrderWeight:      1e-9,
	}
}

// Build assembles the linear program for one planning run. Envelopes are
// processed in asset ID order regardless of input order, so the variable
// layout is a pure function of the inputs.
func (b Builder) Build(h model.Horizon, envs []flex.Envelope, tracks []market.Track) (*Problem, error) {
	if len(envs) == 0 {
		return nil, ErrEmptyPortfolio
	}
	n := h.Len()
	for _, e := range envs {
		if e.Periods() != n {
			return nil, fmt.Errorf("%w: asset %s covers %d periods, horizon has %d",
				ErrHorizonMismatch, e.AssetID, e.Periods(), n)
		}
	}
	for _, tr := range tracks {
		if tr.Periods() != n {
			return nil, fmt.Errorf("%w: product %s covers %d periods, horizon has %d",
				ErrHorizonMismatch, tr.Product, tr.Periods(), n)
		}
	}

	ordered := make([]flex.Envelope, len(envs))
	copy(ordered, envs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AssetID < ordered[j].AssetID })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].AssetID == ordered[i-1].AssetID {
			return nil, fmt.Errorf("%w: duplicate asset %s", flex.ErrInvalidAssetSpec, ordered[i].AssetID)
		}
	}

	p := newProblem(h, ordered, tracks)
	for _, e := range ordered {
		if e.Stateful {
			b.addStorage(p, e)
		} else {
			b.addStateless(p, e)
		}
	}
	for gi, tr := range tracks {
		b.addTracking(p, gi, tr)
	}

	// final layer: a strictly increasing epsilon per variable breaks any
	// remaining degeneracy
	for i := range p.Vars {
		p.Vars[i].Cost += b.OrderWeight * float64(i+1)
	}
	return p, nil
}

func energyCost(e flex.Envelope, t float64, period int) float64 {
	if e.CostPerKWh == nil {
		return 0
	}
	return e.CostPerKWh[period] * t
}

func (b Builder) addStateless(p *Problem, e flex.Envelope) {
	n := p.Horizon.Len()
	for t := 0; t < n; t++ {
		hours := p.Horizon.Period(t).Hours()
		p.addVar(Variable{
			Kind:   VarPower,
			Asset:  e.AssetID,
			Group:  -1,
			Period: t,
			Lower:  e.MinPowerKW[t],
			Upper:  e.MaxPowerKW[t],
			Cost:   energyCost(e, hours, t),
		})
	}
	b.addRamp(p, e, func(t int) []Term {
		idx, _ := p.Lookup(VarPower, e.AssetID, -1, t)
		return []Term{{Var: idx, Coef: 1}}
	})
}

func (b Builder) addStorage(p *Problem, e flex.Envelope) {
	n := p.Horizon.Len()
	for t := 0; t < n; t++ {
		hours := p.Horizon.Period(t).Hours()
		chargeCap := e.MaxPowerKW[t]
		if chargeCap < 0 {
			chargeCap = 0
		}
		dischargeCap := -e.MinPowerKW[t]
		if dischargeCap < 0 {
			dischargeCap = 0
		}
		c := p.addVar(Variable{
			Kind: VarCharge, Asset: e.AssetID, Group: -1, Period: t,
			Lower: 0, Upper: chargeCap,
			Cost: energyCost(e, hours, t) + b.ThroughputWeight,
		})
		d := p.addVar(Variable{
			Kind: VarDischarge, Asset: e.AssetID, Group: -1, Period: t,
			Lower: 0, Upper: dischargeCap,
			Cost: -energyCost(e, hours, t) + b.ThroughputWeight,
		})
		s := p.addVar(Variable{
			Kind: VarState, Asset: e.AssetID, Group: -1, Period: t,
			Lower: e.MinStateKWh, Upper: e.MaxStateKWh,
		})

		// state[t] = state[t-1] + effIn*charge*dt - discharge*dt/effOut
		row := Constraint{
			Terms: []Term{
				{Var: s, Coef: 1},
				{Var: c, Coef: -e.EfficiencyIn * hours},
				{Var: d, Coef: hours / e.EfficiencyOut},
			},
			Label: fmt.Sprintf("state:%s:%d", e.AssetID, t),
		}
		if t == 0 {
			row.RHS = e.InitialStateKWh
		} else {
			prev, _ := p.Lookup(VarState, e.AssetID, -1, t-1)
			row.Terms = append(row.Terms, Term{Var: prev, Coef: -1})
		}
		p.Eq = append(p.Eq, row)
	}
	b.addRamp(p, e, func(t int) []Term {
		c, _ := p.Lookup(VarCharge, e.AssetID, -1, t)
		d, _ := p.Lookup(VarDischarge, e.AssetID, -1, t)
		return []Term{{Var: c, Coef: 1}, {Var: d, Coef: -1}}
	})
}

// addRamp emits |power[t] - power[t-1]| <= ramp as two inequality rows per
// adjacent pair. netPower yields the terms describing the asset's signed
// power in one period.
func (b Builder) addRamp(p *Problem, e flex.Envelope, netPower func(t int) []Term) {
	if e.RampKW <= 0 {
		return
	}
	for t := 1; t < p.Horizon.Len(); t++ {
		up := Constraint{RHS: e.RampKW, Label: fmt.Sprintf("ramp_up:%s:%d", e.AssetID, t)}
		down := Constraint{RHS: e.RampKW, Label: fmt.Sprintf("ramp_down:%s:%d", e.AssetID, t)}
		for _, term := range netPower(t) {
			up.Terms = append(up.Terms, term)
			down.Terms = append(down.Terms, Term{Var: term.Var, Coef: -term.Coef})
		}
		for _, term := range netPower(t - 1) {
			up.Terms = append(up.Terms, Term{Var: term.Var, Coef: -term.Coef})
			down.Terms = append(down.Terms, term)
		}
		p.Ineq = append(p.Ineq, up, down)
	}
}

// addTracking ties the aggregate to one track. The deviation slacks are hard
// bounded by the tolerance band, so any plan that solves is inside the band
// by construction; their small cost pulls the aggregate onto the target when
// the band leaves room.
func (b Builder) addTracking(p *Problem, group int, tr market.Track) {
	for t := 0; t < p.Horizon.Len(); t++ {
		over := p.addVar(Variable{
			Kind: VarSlackOver, Group: group, Period: t,
			Lower: 0, Upper: tr.ToleranceKW[t],
			Cost: b.DeviationWeight,
		})
		under := p.addVar(Variable{
			Kind: VarSlackUnder, Group: group, Period: t,
			Lower: 0, Upper: tr.ToleranceKW[t],
			Cost: b.DeviationWeight,
		})
		row := Constraint{
			RHS:   tr.TargetKW[t],
			Label: fmt.Sprintf("track:%s:%d", tr.Product, t),
		}
		for _, e := range p.Envelopes {
			if e.Stateful {
				c, _ := p.Lookup(VarCharge, e.AssetID, -1, t)
				d, _ := p.Lookup(VarDischarge, e.AssetID, -1, t)
				row.Terms = append(row.Terms, Term{Var: c, Coef: 1}, Term{Var: d, Coef: -1})
			} else {
				idx, _ := p.Lookup(VarPower, e.AssetID, -1, t)
				row.Terms = append(row.Terms, Term{Var: idx, Coef: 1})
			}
		}
		row.Terms = append(row.Terms, Term{Var: over, Coef: -1}, Term{Var: under, Coef: 1})
		p.Eq = append(p.Eq, row)
	}
}
