package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/volteq/flexplan/core/history"
	"github.com/volteq/flexplan/core/model"
)

func seedStore(t *testing.T) *history.MemoryStore {
	t.Helper()
	store := history.NewMemoryStore(0)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "r1", Portfolio: "pf-a", Status: model.StatusOptimal, ScheduleID: "s1", StartedAt: base, FinishedAt: base.Add(time.Second)},
		{ID: "r2", Portfolio: "pf-a", Status: model.StatusInfeasible, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Second)},
		{ID: "r3", Portfolio: "pf-b", Status: model.StatusOptimal, ScheduleID: "s2", StartedAt: base.Add(2 * time.Hour), FinishedAt: base.Add(2*time.Hour + time.Second)},
	}
	for _, r := range runs {
		if err := store.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return store
}

func TestRunHandler_AuthAndFilters(t *testing.T) {
	h := NewRunHandler(seedStore(t), "tok")

	req := httptest.NewRequest("GET", "/api/runs?portfolio=pf-a", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 || out[0].ID != "r1" || out[1].ID != "r2" {
		t.Fatalf("unexpected records %#v", out)
	}

	// unauthorized
	req = httptest.NewRequest("GET", "/api/runs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestRunHandler_StatusAndTimeFilters(t *testing.T) {
	h := NewRunHandler(seedStore(t), "")

	req := httptest.NewRequest("GET", "/api/runs?status=infeasible", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out []model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r2" {
		t.Fatalf("status filter bad %#v", out)
	}

	req = httptest.NewRequest("GET", "/api/runs?start=2026-03-10T10:30:00Z", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r3" {
		t.Fatalf("time filter bad %#v", out)
	}

	req = httptest.NewRequest("GET", "/api/runs?limit=1", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	out = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r1" {
		t.Fatalf("limit bad %#v", out)
	}
}
