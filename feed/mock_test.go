package feed

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/replan"
)

type recordSink struct {
	mu     sync.Mutex
	series map[string][]model.SeriesPoint
}

func newRecordSink() *recordSink {
	return &recordSink{series: make(map[string][]model.SeriesPoint)}
}

func (s *recordSink) SetBaseline(portfolio, assetID string, kw []model.SeriesPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[portfolio+"/"+assetID] = kw
	return nil
}

func (s *recordSink) get(key string) []model.SeriesPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series[key]
}

type failSink struct{}

func (failSink) SetBaseline(string, string, []model.SeriesPoint) error {
	return fmt.Errorf("unknown asset")
}

func mockConfig() config.FeedMockConfig {
	return config.FeedMockConfig{
		MinIntervalSeconds: 60,
		MaxIntervalSeconds: 60,
		JitterPct:          0.15,
		Seed:               42,
		Requirements: []config.MockRequirementConfig{
			{Portfolio: "pf-a", Product: "fcr", BaseTargetKW: -20, AmplitudeKW: 5, ToleranceKW: 3},
		},
		Baselines: []config.MockBaselineConfig{
			{Portfolio: "pf-a", AssetID: "ld1", BaseKW: 25, AmplitudeKW: 4},
		},
	}
}

func testPlanner() replan.Config {
	return replan.Config{Periods: 4, ResolutionMinutes: 15}
}

func TestMockDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 7, 0, 0, time.UTC)

	c1, c2 := NewCache(), NewCache()
	m1 := NewMock(mockConfig(), testPlanner(), c1, newRecordSink(), nil)
	m2 := NewMock(mockConfig(), testPlanner(), c2, newRecordSink(), nil)
	m1.Emit(now)
	m2.Emit(now)

	r1, _ := c1.Requirements(context.Background(), "pf-a", model.Horizon{})
	r2, _ := c2.Requirements(context.Background(), "pf-a", model.Horizon{})
	if len(r1) != 1 || !reflect.DeepEqual(r1, r2) {
		t.Fatalf("expected deterministic generation: %+v vs %+v", r1, r2)
	}
}

func TestMockTrajectoryShape(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 7, 0, 0, time.UTC)
	cache := NewCache()
	sink := newRecordSink()
	var triggers []model.Trigger
	m := NewMock(mockConfig(), testPlanner(), cache, sink, func(tr model.Trigger) {
		triggers = append(triggers, tr)
	})
	m.Emit(now)

	reqs, _ := cache.Requirements(context.Background(), "pf-a", model.Horizon{})
	if len(reqs) != 1 {
		t.Fatalf("expected one requirement, got %d", len(reqs))
	}
	// Twice the horizon, anchored at the period boundary before now.
	want := testPlanner().Periods * 2
	if len(reqs[0].TargetKW) != want {
		t.Errorf("trajectory length %d, want %d", len(reqs[0].TargetKW), want)
	}
	boundary := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !reqs[0].TargetKW[0].Start.Equal(boundary) {
		t.Errorf("trajectory starts at %v, want %v", reqs[0].TargetKW[0].Start, boundary)
	}

	base := sink.get("pf-a/ld1")
	if len(base) != want {
		t.Errorf("baseline length %d, want %d", len(base), want)
	}

	if len(triggers) != 1 || triggers[0].Kind != model.TriggerForecastUpdate || triggers[0].Portfolio != "pf-a" {
		t.Errorf("unexpected triggers: %+v", triggers)
	}
}

func TestMockBaselineFailureKeepsRequirements(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 7, 0, 0, time.UTC)
	cache := NewCache()
	var triggers []model.Trigger
	m := NewMock(mockConfig(), testPlanner(), cache, failSink{}, func(tr model.Trigger) {
		triggers = append(triggers, tr)
	})
	m.Emit(now)

	reqs, _ := cache.Requirements(context.Background(), "pf-a", model.Horizon{})
	if len(reqs) != 1 {
		t.Fatalf("requirements should survive baseline failures, got %d", len(reqs))
	}
	if len(triggers) != 1 {
		t.Errorf("expected one trigger, got %d", len(triggers))
	}
}

func TestMockEmitsOnStart(t *testing.T) {
	cache := NewCache()
	triggers := make(chan model.Trigger, 1)
	m := NewMock(mockConfig(), testPlanner(), cache, newRecordSink(), func(tr model.Trigger) {
		select {
		case triggers <- tr:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Start(ctx) }()

	// The interval is a minute, so this only passes via the immediate batch.
	select {
	case tr := <-triggers:
		if tr.Kind != model.TriggerForecastUpdate {
			t.Fatalf("unexpected trigger kind %v", tr.Kind)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no batch emitted on start")
	}
}
