package solver

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/market"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/plan"
)

func testHorizon(t *testing.T, periods int) model.Horizon {
	t.Helper()
	h, err := model.Rolling(time.Date(2027, 5, 2, 12, 0, 0, 0, time.UTC), time.Hour, periods)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	return h
}

func buildProblem(t *testing.T, h model.Horizon, assets []model.Asset, reqs []model.Requirement) *plan.Problem {
	t.Helper()
	envs, err := flex.BuildAll(assets, h)
	if err != nil {
		t.Fatalf("envelopes: %v", err)
	}
	tracks, err := market.BuildTracks(reqs, h)
	if err != nil {
		t.Fatalf("tracks: %v", err)
	}
	p, err := plan.NewBuilder().Build(h, envs, tracks)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return p
}

func seriesOn(h model.Horizon, values ...float64) []model.SeriesPoint {
	pts := make([]model.SeriesPoint, len(values))
	for i, v := range values {
		pts[i] = model.SeriesPoint{Start: h.Period(i).Start, Value: v}
	}
	return pts
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-5 }

// The canonical round trip: a store that must discharge first and recharge
// later, next to a load that is worth keeping online. Exact tracking forces a
// unique optimum, so every setpoint is predictable.
func TestSimplexStorageAndLoadRoundTrip(t *testing.T) {
	h := testHorizon(t, 2)
	assets := []model.Asset{
		{
			ID: "bat1", Class: model.ClassStorage,
			MinPowerKW: -10, MaxPowerKW: 10,
			MinStateKWh: 0, MaxStateKWh: 20, InitialStateKWh: 10,
			EfficiencyIn: 1, EfficiencyOut: 1,
		},
		{
			ID: "load1", Class: model.ClassCurtailableLoad,
			MaxPowerKW: 20,
			BaselineKW: seriesOn(h, 8, 8),
			CostPerKWh: seriesOn(h, -0.5, -0.5), // consumption is valuable, curtailing costs
		},
	}
	reqs := []model.Requirement{{
		Product:  "balancing",
		TargetKW: seriesOn(h, -2, 12),
	}}
	p := buildProblem(t, h, assets, reqs)

	res, err := NewSimplex().Solve(context.Background(), p, 5*time.Second)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusOptimal {
		t.Fatalf("status %s (%s)", res.Status, res.Detail)
	}

	sched, err := plan.Assemble(plan.Input{
		Portfolio: "pf1", Problem: p,
		Status: res.Status, Objective: res.Objective, X: res.X, Solver: "simplex",
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	// load runs at baseline, storage swings from full discharge to recharge
	if got := sched.Setpoint("load1", 0); !approx(got, 8) {
		t.Fatalf("load period 0 = %f, want 8", got)
	}
	if got := sched.Setpoint("bat1", 0); !approx(got, -10) {
		t.Fatalf("storage period 0 = %f, want -10", got)
	}
	if got := sched.Setpoint("bat1", 1); !approx(got, 4) {
		t.Fatalf("storage period 1 = %f, want 4", got)
	}
	for i, want := range []float64{-2, 12} {
		if !approx(sched.AggregateKW[i], want) {
			t.Fatalf("aggregate[%d] = %f, want %f", i, sched.AggregateKW[i], want)
		}
	}
	// state drains to empty, then refills to 4 kWh
	s0, _ := p.Lookup(plan.VarState, "bat1", -1, 0)
	s1, _ := p.Lookup(plan.VarState, "bat1", -1, 1)
	if !approx(res.X[s0], 0) || !approx(res.X[s1], 4) {
		t.Fatalf("state trajectory [%f, %f], want [0, 4]", res.X[s0], res.X[s1])
	}
}

func TestSimplexPinnedStorageYieldsZeroPower(t *testing.T) {
	h := testHorizon(t, 3)
	assets := []model.Asset{{
		ID: "bat1", Class: model.ClassStorage,
		MinPowerKW: -10, MaxPowerKW: 10,
		MinStateKWh: 12, MaxStateKWh: 12, InitialStateKWh: 12,
		EfficiencyIn: 1, EfficiencyOut: 1,
	}}
	reqs := []model.Requirement{{
		Product:  "balancing",
		TargetKW: seriesOn(h, 0, 0, 0),
	}}
	p := buildProblem(t, h, assets, reqs)

	res, err := NewSimplex().Solve(context.Background(), p, 5*time.Second)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusOptimal {
		t.Fatalf("status %s (%s)", res.Status, res.Detail)
	}
	for tt := 0; tt < 3; tt++ {
		c, _ := p.Lookup(plan.VarCharge, "bat1", -1, tt)
		d, _ := p.Lookup(plan.VarDischarge, "bat1", -1, tt)
		if !approx(res.X[c], 0) || !approx(res.X[d], 0) {
			t.Fatalf("pinned storage moved in period %d: charge %f discharge %f", tt, res.X[c], res.X[d])
		}
	}
}

func TestSimplexReportsInfeasible(t *testing.T) {
	h := testHorizon(t, 1)
	assets := []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator,
		MinPowerKW: -5, MaxPowerKW: 0,
	}}
	reqs := []model.Requirement{{
		Product:     "balancing",
		TargetKW:    seriesOn(h, -50),
		ToleranceKW: 1,
	}}
	p := buildProblem(t, h, assets, reqs)

	res, err := NewSimplex().Solve(context.Background(), p, 5*time.Second)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusInfeasible {
		t.Fatalf("status %s, want infeasible", res.Status)
	}
	if res.X != nil {
		t.Fatal("infeasible result must carry no assignment")
	}
}

func TestSimplexToleranceBandIsHard(t *testing.T) {
	h := testHorizon(t, 1)
	assets := []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator,
		MinPowerKW: -8, MaxPowerKW: 0,
	}}
	reqs := []model.Requirement{{
		Product:     "balancing",
		TargetKW:    seriesOn(h, -10),
		ToleranceKW: 3,
	}}
	p := buildProblem(t, h, assets, reqs)

	res, err := NewSimplex().Solve(context.Background(), p, 5*time.Second)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusOptimal {
		t.Fatalf("status %s (%s)", res.Status, res.Detail)
	}
	// the best the portfolio can do is -8, inside the band [-13, -7]
	idx, _ := p.Lookup(plan.VarPower, "gen1", -1, 0)
	if !approx(res.X[idx], -8) {
		t.Fatalf("setpoint %f, want -8", res.X[idx])
	}
}

func TestSimplexDeterminism(t *testing.T) {
	h := testHorizon(t, 4)
	assets := []model.Asset{
		{ID: "a", Class: model.ClassStorage, MinPowerKW: -10, MaxPowerKW: 10,
			MinStateKWh: 0, MaxStateKWh: 40, InitialStateKWh: 20, EfficiencyIn: 0.95, EfficiencyOut: 0.95},
		{ID: "b", Class: model.ClassStorage, MinPowerKW: -10, MaxPowerKW: 10,
			MinStateKWh: 0, MaxStateKWh: 40, InitialStateKWh: 20, EfficiencyIn: 0.95, EfficiencyOut: 0.95},
	}
	reqs := []model.Requirement{{
		Product:     "balancing",
		TargetKW:    seriesOn(h, -5, 5, -5, 5),
		ToleranceKW: 2,
	}}

	p1 := buildProblem(t, h, assets, reqs)
	p2 := buildProblem(t, h, assets, reqs)
	if p1.Fingerprint() != p2.Fingerprint() {
		t.Fatal("identical inputs built different problems")
	}

	r1, err := NewSimplex().Solve(context.Background(), p1, 5*time.Second)
	if err != nil {
		t.Fatalf("solve 1: %v", err)
	}
	r2, err := NewSimplex().Solve(context.Background(), p2, 5*time.Second)
	if err != nil {
		t.Fatalf("solve 2: %v", err)
	}
	if len(r1.X) != len(r2.X) {
		t.Fatalf("assignment lengths differ: %d vs %d", len(r1.X), len(r2.X))
	}
	for i := range r1.X {
		if r1.X[i] != r2.X[i] {
			t.Fatalf("assignment diverges at variable %d: %v vs %v", i, r1.X[i], r2.X[i])
		}
	}
}

func TestSimplexBudgetFallsBackToIncumbent(t *testing.T) {
	h := testHorizon(t, 2)
	assets := []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator,
		MinPowerKW: -10, MaxPowerKW: 0,
	}}
	reqs := []model.Requirement{{
		Product:     "balancing",
		TargetKW:    seriesOn(h, -5, -5),
		ToleranceKW: 1,
	}}
	p := buildProblem(t, h, assets, reqs)

	res, err := NewSimplex().Solve(context.Background(), p, time.Nanosecond)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusFeasible {
		t.Fatalf("status %s, want feasible incumbent", res.Status)
	}
	if res.Detail == "" {
		t.Fatal("budget fallback must say where the plan came from")
	}
	if _, err := plan.Assemble(plan.Input{
		Portfolio: "pf1", Problem: p, Status: res.Status, Objective: res.Objective, X: res.X, Solver: "simplex",
	}); err != nil {
		t.Fatalf("incumbent does not assemble: %v", err)
	}
}

func TestSimplexBudgetWithoutIncumbentIsSolverError(t *testing.T) {
	h := testHorizon(t, 1)
	p := buildProblem(t, h, []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator, MinPowerKW: -10, MaxPowerKW: 0,
	}}, nil)

	s := NewSimplex()
	s.Incumbent = nil
	res, err := s.Solve(context.Background(), p, time.Nanosecond)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != model.StatusSolverError {
		t.Fatalf("status %s, want solver_error", res.Status)
	}
}

func TestSimplexHonoursCancelledContext(t *testing.T) {
	h := testHorizon(t, 1)
	p := buildProblem(t, h, []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator, MinPowerKW: -10, MaxPowerKW: 0,
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimplex().Solve(ctx, p, time.Second); err == nil {
		t.Fatal("expected context error")
	}
}

func TestSimplexRejectsMisuse(t *testing.T) {
	if _, err := NewSimplex().Solve(context.Background(), nil, time.Second); err == nil {
		t.Fatal("expected error for nil problem")
	}
	h := testHorizon(t, 1)
	p := buildProblem(t, h, []model.Asset{{
		ID: "gen1", Class: model.ClassDispatchableGenerator, MinPowerKW: -10, MaxPowerKW: 0,
	}}, nil)
	if _, err := NewSimplex().Solve(context.Background(), p, 0); err == nil {
		t.Fatal("expected error for zero budget")
	}
}
