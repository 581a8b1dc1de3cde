package scenarios

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/volteq/flexplan/core/factory"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/publish"
	"github.com/volteq/flexplan/core/replan"
	"github.com/volteq/flexplan/core/solver"
	"github.com/volteq/flexplan/feed"
	"github.com/volteq/flexplan/infra/logger"
	"github.com/volteq/flexplan/infra/metrics"
	"github.com/volteq/flexplan/registry"
)

// collectPublisher forwards publications to the waiting runner.
type collectPublisher struct {
	ch chan publish.Publication
}

func (p collectPublisher) PublishSchedule(_ context.Context, pub publish.Publication) error {
	p.ch <- pub
	return nil
}

// RunScenario replays the scenario against a full planning pipeline and
// checks the published schedules against the expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	if sc.Planner.Periods <= 0 || sc.Planner.ResolutionMinutes <= 0 {
		t.Fatalf("scenario %s: planner periods and resolution are required", sc.Name)
	}
	resolution := time.Duration(sc.Planner.ResolutionMinutes) * time.Minute

	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	assets := make([]model.Asset, len(sc.Assets))
	for i, def := range sc.Assets {
		a, err := def.ToModel()
		if err != nil {
			t.Fatalf("asset %s: %v", def.ID, err)
		}
		assets[i] = a
	}
	fleet, err := registry.NewStatic(map[string][]model.Asset{sc.Portfolio: assets})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	solv, err := solver.Builtin().Create(factory.ModuleConfig{Type: "simplex"})
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	cache := feed.NewCache()
	collect := collectPublisher{ch: make(chan publish.Publication, 8)}
	cfg := replan.Config{
		Periods:           sc.Planner.Periods,
		ResolutionMinutes: sc.Planner.ResolutionMinutes,
		CoalesceWindowMS:  10,
	}
	ctrl, err := replan.NewController(sc.Portfolio, cfg, fleet, cache, solv, collect, sink, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	fleet.SetNotify(ctrl.Submit)

	// Series span twice the horizon so runs started mid-scenario stay covered.
	start := time.Now().Truncate(resolution)
	span := 2 * sc.Planner.Periods
	for _, def := range sc.Assets {
		if def.BaselineKW != 0 {
			if err := fleet.SetBaseline(sc.Portfolio, def.ID, flatSeries(start, resolution, span, def.BaselineKW)); err != nil {
				t.Fatalf("baseline %s: %v", def.ID, err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	var pubs []publish.Publication
	for i, step := range sc.Steps {
		if len(step.Requirements) > 0 {
			reqs := make([]model.Requirement, len(step.Requirements))
			for j, rd := range step.Requirements {
				reqs[j] = model.Requirement{
					Product:      rd.Product,
					TargetKW:     flatSeries(start, resolution, span, rd.TargetKW),
					ToleranceKW:  rd.ToleranceKW,
					ToleranceRel: rd.ToleranceRel,
				}
			}
			cache.SetAll(sc.Portfolio, reqs)
			ctrl.Submit(model.Trigger{Kind: model.TriggerForecastUpdate, Portfolio: sc.Portfolio, At: time.Now(), Reason: "scenario step"})
		}
		for _, id := range step.Unavailable {
			if err := fleet.SetAvailability(sc.Portfolio, id, false); err != nil {
				t.Fatalf("availability %s: %v", id, err)
			}
		}
		select {
		case p := <-collect.ch:
			pubs = append(pubs, p)
		case <-time.After(5 * time.Second):
			t.Fatalf("scenario %s step %d: no schedule published", sc.Name, i)
		}
	}

	if sc.Expected.Publications != 0 && len(pubs) != sc.Expected.Publications {
		t.Errorf("scenario %s: expected %d publications, got %d", sc.Name, sc.Expected.Publications, len(pubs))
	}
	if len(pubs) == 0 {
		return
	}
	final := pubs[len(pubs)-1]
	if sc.Expected.Status != "" && final.Schedule.Status.String() != sc.Expected.Status {
		t.Errorf("scenario %s: expected status %s, got %s", sc.Name, sc.Expected.Status, final.Schedule.Status)
	}
	if sc.Expected.MaxDeviationKW > 0 {
		var target float64
		for _, rd := range lastRequirements(sc) {
			target += rd.TargetKW
		}
		var worst float64
		for _, agg := range final.Schedule.AggregateKW {
			if dev := math.Abs(agg - target); dev > worst {
				worst = dev
			}
		}
		if worst > sc.Expected.MaxDeviationKW+1e-6 {
			t.Errorf("scenario %s: worst deviation %.3f kW exceeds %.3f kW", sc.Name, worst, sc.Expected.MaxDeviationKW)
		}
	}
}

// lastRequirements returns the requirement set in force at the end of the
// scenario.
func lastRequirements(sc *Scenario) []RequirementDef {
	for i := len(sc.Steps) - 1; i >= 0; i-- {
		if len(sc.Steps[i].Requirements) > 0 {
			return sc.Steps[i].Requirements
		}
	}
	return nil
}

func flatSeries(start time.Time, resolution time.Duration, count int, value float64) []model.SeriesPoint {
	out := make([]model.SeriesPoint, count)
	for i := range out {
		out[i] = model.SeriesPoint{Start: start.Add(time.Duration(i) * resolution), Value: value}
	}
	return out
}
