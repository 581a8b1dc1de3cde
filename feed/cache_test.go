package feed

import (
	"context"
	"testing"
	"time"

	"github.com/volteq/flexplan/core/model"
)

func sampleRequirement(product string, kw float64) model.Requirement {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	return model.Requirement{
		Product:     product,
		ToleranceKW: 5,
		TargetKW: []model.SeriesPoint{
			{Start: start, Value: kw},
			{Start: start.Add(15 * time.Minute), Value: kw - 2},
		},
	}
}

func TestCacheSetAllReportsChange(t *testing.T) {
	c := NewCache()
	reqs := []model.Requirement{sampleRequirement("fcr", -20)}
	if !c.SetAll("pf-a", reqs) {
		t.Fatal("first delivery should report change")
	}
	if c.SetAll("pf-a", reqs) {
		t.Fatal("identical delivery should not report change")
	}
	if !c.SetAll("pf-a", []model.Requirement{sampleRequirement("fcr", -25)}) {
		t.Fatal("changed trajectory should report change")
	}
	if !c.SetAll("pf-a", nil) {
		t.Fatal("clearing should report change")
	}
	if c.SetAll("pf-a", nil) {
		t.Fatal("clearing twice should not report change")
	}
}

func TestCacheRequirementsSorted(t *testing.T) {
	c := NewCache()
	c.SetAll("pf-a", []model.Requirement{
		sampleRequirement("mfrr", -10),
		sampleRequirement("afrr", -15),
		sampleRequirement("fcr", -20),
	})
	got, err := c.Requirements(context.Background(), "pf-a", model.Horizon{})
	if err != nil {
		t.Fatalf("requirements: %v", err)
	}
	if len(got) != 3 || got[0].Product != "afrr" || got[1].Product != "fcr" || got[2].Product != "mfrr" {
		t.Errorf("not sorted by product: %+v", got)
	}
}

func TestCacheUnknownPortfolioEmpty(t *testing.T) {
	c := NewCache()
	got, err := c.Requirements(context.Background(), "pf-missing", model.Horizon{})
	if err != nil {
		t.Fatalf("requirements: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty set, got %+v", got)
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache()
	orig := []model.Requirement{sampleRequirement("fcr", -20)}
	c.SetAll("pf-a", orig)

	// Mutating the caller's slice must not leak into the cache.
	orig[0].TargetKW[0].Value = 999
	got, _ := c.Requirements(context.Background(), "pf-a", model.Horizon{})
	if got[0].TargetKW[0].Value != -20 {
		t.Errorf("cache aliases caller slice: %v", got[0].TargetKW[0].Value)
	}

	// Mutating a returned slice must not change later reads.
	got[0].TargetKW[1].Value = 777
	again, _ := c.Requirements(context.Background(), "pf-a", model.Horizon{})
	if again[0].TargetKW[1].Value != -22 {
		t.Errorf("cache aliases returned slice: %v", again[0].TargetKW[1].Value)
	}
}
