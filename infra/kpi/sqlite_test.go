package kpi

import (
	"path/filepath"
	"testing"
	"time"

	core "github.com/volteq/flexplan/core/metrics/kpi"
)

func TestSQLiteStoreAggregates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kpi.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	d := core.Day(time.Now())
	if err := s.Add(core.Record{Portfolio: "pf", Date: d, PlannedKWh: 10, Publications: 1, WorstDeviationKW: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(core.Record{Portfolio: "pf", Date: d.Add(3 * time.Hour), PlannedKWh: 5, Publications: 1, Stale: 1, WorstDeviationKW: 7}); err != nil {
		t.Fatalf("add2: %v", err)
	}

	recs, err := s.Query("pf", d, d)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one aggregated day, got %d", len(recs))
	}
	r := recs[0]
	if r.PlannedKWh != 15 || r.Publications != 2 || r.Stale != 1 || r.WorstDeviationKW != 7 {
		t.Fatalf("unexpected aggregate %+v", r)
	}

	if recs, err := s.Query("other", d, d); err != nil || len(recs) != 0 {
		t.Fatalf("foreign portfolio must be empty, got %v %v", recs, err)
	}
}
