package flex

import (
	"errors"
	"testing"
	"time"

	"github.com/volteq/flexplan/core/model"
)

func testHorizon(t *testing.T, periods int) model.Horizon {
	t.Helper()
	h, err := model.Rolling(time.Date(2027, 5, 2, 12, 0, 0, 0, time.UTC), time.Hour, periods)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	return h
}

func baselineFor(h model.Horizon, values ...float64) []model.SeriesPoint {
	pts := make([]model.SeriesPoint, len(values))
	for i, v := range values {
		pts[i] = model.SeriesPoint{Start: h.Period(i).Start, Value: v}
	}
	return pts
}

func TestBuildStorage(t *testing.T) {
	h := testHorizon(t, 3)
	a := model.Asset{
		ID: "bat1", Class: model.ClassStorage,
		MinPowerKW: -40, MaxPowerKW: 40,
		MinStateKWh: 5, MaxStateKWh: 95, InitialStateKWh: 50,
		EfficiencyIn: 0.9, EfficiencyOut: 0.9,
		RampKW: 20,
	}
	e, err := Build(a, h)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !e.Stateful || e.Periods() != 3 {
		t.Fatalf("unexpected envelope shape: stateful=%v periods=%d", e.Stateful, e.Periods())
	}
	for i := 0; i < 3; i++ {
		if e.MinPowerKW[i] != -40 || e.MaxPowerKW[i] != 40 {
			t.Fatalf("period %d bounds [%f, %f]", i, e.MinPowerKW[i], e.MaxPowerKW[i])
		}
	}
	if e.RampKW != 20 {
		t.Fatalf("ramp %f", e.RampKW)
	}
}

func TestBuildStoragePinsUnavailablePeriods(t *testing.T) {
	h := testHorizon(t, 3)
	a := model.Asset{
		ID: "bat1", Class: model.ClassStorage,
		MinPowerKW: -40, MaxPowerKW: 40,
		MaxStateKWh: 95, InitialStateKWh: 50,
		EfficiencyIn: 1, EfficiencyOut: 1,
		Availability: []model.Window{
			{Start: h.Period(0).Start, End: h.Period(1).End()},
		},
	}
	e, err := Build(a, h)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.MinPowerKW[2] != 0 || e.MaxPowerKW[2] != 0 {
		t.Fatalf("unavailable storage period not pinned to 0: [%f, %f]", e.MinPowerKW[2], e.MaxPowerKW[2])
	}
}

func TestBuildCurtailableLoad(t *testing.T) {
	h := testHorizon(t, 2)
	a := model.Asset{
		ID: "load1", Class: model.ClassCurtailableLoad,
		MaxPowerKW: 100,
		BaselineKW: baselineFor(h, 30, 45),
		Availability: []model.Window{
			{Start: h.Period(0).Start, End: h.Period(0).End()},
		},
	}
	e, err := Build(a, h)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.MinPowerKW[0] != 0 || e.MaxPowerKW[0] != 30 {
		t.Fatalf("available load period bounds [%f, %f]", e.MinPowerKW[0], e.MaxPowerKW[0])
	}
	if e.MinPowerKW[1] != 45 || e.MaxPowerKW[1] != 45 {
		t.Fatalf("unavailable load period must run at baseline, got [%f, %f]", e.MinPowerKW[1], e.MaxPowerKW[1])
	}
}

func TestBuildLoadWithoutBaselineFails(t *testing.T) {
	h := testHorizon(t, 2)
	a := model.Asset{ID: "load1", Class: model.ClassCurtailableLoad, MaxPowerKW: 100}
	if _, err := Build(a, h); !errors.Is(err, ErrIncompleteAssetData) {
		t.Fatalf("expected ErrIncompleteAssetData, got %v", err)
	}

	// partial coverage is just as incomplete
	a.BaselineKW = baselineFor(h, 30)[:1]
	if _, err := Build(a, h); !errors.Is(err, ErrIncompleteAssetData) {
		t.Fatalf("expected ErrIncompleteAssetData for partial series, got %v", err)
	}
}

func TestBuildGenerator(t *testing.T) {
	h := testHorizon(t, 2)
	a := model.Asset{
		ID: "gen1", Class: model.ClassDispatchableGenerator,
		MinPowerKW: -80, MaxPowerKW: -10,
	}
	e, err := Build(a, h)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if e.MinPowerKW[0] != -80 || e.MaxPowerKW[0] != -10 {
		t.Fatalf("generator bounds [%f, %f]", e.MinPowerKW[0], e.MaxPowerKW[0])
	}

	bad := a
	bad.MaxPowerKW = 5
	if _, err := Build(bad, h); !errors.Is(err, ErrInvalidAssetSpec) {
		t.Fatalf("expected ErrInvalidAssetSpec for consuming generator, got %v", err)
	}
}

func TestBuildBaseloadIsPinned(t *testing.T) {
	h := testHorizon(t, 2)
	a := model.Asset{
		ID: "base1", Class: model.ClassBaseload,
		MaxPowerKW: 500,
		BaselineKW: baselineFor(h, 120, 110),
	}
	e, err := Build(a, h)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i, want := range []float64{120, 110} {
		if e.MinPowerKW[i] != want || e.MaxPowerKW[i] != want {
			t.Fatalf("baseload period %d not pinned to %f: [%f, %f]", i, want, e.MinPowerKW[i], e.MaxPowerKW[i])
		}
	}
	if e.Controllable() {
		t.Fatal("pinned baseload must not be controllable")
	}
}

func TestBuildRejectsInvertedBounds(t *testing.T) {
	h := testHorizon(t, 1)
	a := model.Asset{ID: "bat1", Class: model.ClassStorage, MinPowerKW: 10, MaxPowerKW: -10,
		MaxStateKWh: 10, EfficiencyIn: 1, EfficiencyOut: 1}
	if _, err := Build(a, h); !errors.Is(err, ErrInvalidAssetSpec) {
		t.Fatalf("expected ErrInvalidAssetSpec, got %v", err)
	}
}

func TestBuildRejectsDisjointAvailability(t *testing.T) {
	h := testHorizon(t, 2)
	a := model.Asset{
		ID: "gen1", Class: model.ClassDispatchableGenerator,
		MinPowerKW: -10, MaxPowerKW: 0,
		Availability: []model.Window{
			{Start: h.End().Add(time.Hour), End: h.End().Add(2 * time.Hour)},
		},
	}
	if _, err := Build(a, h); !errors.Is(err, ErrInvalidAssetSpec) {
		t.Fatalf("expected ErrInvalidAssetSpec for disjoint windows, got %v", err)
	}
}

func TestBuildAllStopsAtFirstBadAsset(t *testing.T) {
	h := testHorizon(t, 1)
	good := model.Asset{ID: "gen1", Class: model.ClassDispatchableGenerator, MinPowerKW: -10}
	bad := model.Asset{ID: "load1", Class: model.ClassCurtailableLoad, MaxPowerKW: 10}
	if _, err := BuildAll([]model.Asset{good, bad}, h); !errors.Is(err, ErrIncompleteAssetData) {
		t.Fatalf("expected ErrIncompleteAssetData, got %v", err)
	}
}
