package runs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/publish"
)

type fakeSource struct {
	pubs map[string]publish.Publication
}

func (f *fakeSource) Portfolios() []string {
	return []string{"pf-a", "pf-b"}
}

func (f *fakeSource) LastPublication(portfolio string) (publish.Publication, bool) {
	p, ok := f.pubs[portfolio]
	return p, ok
}

func testPublication(t *testing.T) publish.Publication {
	t.Helper()
	h, err := model.Rolling(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), 15*time.Minute, 2)
	if err != nil {
		t.Fatalf("horizon: %v", err)
	}
	return publish.Publication{
		Portfolio: "pf-a",
		Seq:       3,
		Schedule: model.Schedule{
			ID:          "sched-1",
			Portfolio:   "pf-a",
			Horizon:     h,
			SetpointsKW: map[string][]float64{"bat1": {-10, -12}},
			AggregateKW: []float64{-10, -12},
			Objective:   1.5,
			Status:      model.StatusOptimal,
			Solver:      "simplex",
			CreatedAt:   time.Date(2026, 3, 10, 8, 59, 0, 0, time.UTC),
		},
	}
}

func TestScheduleHandler_Basic(t *testing.T) {
	src := &fakeSource{pubs: map[string]publish.Publication{"pf-a": testPublication(t)}}
	h := NewScheduleHandler(src)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/schedules", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []scheduleOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// pf-b has no plan yet, so only pf-a shows up.
	if len(out) != 1 || out[0].ScheduleID != "sched-1" || out[0].Seq != 3 {
		t.Fatalf("unexpected output %#v", out)
	}
	if out[0].Status != "optimal" || len(out[0].PeriodStarts) != 2 {
		t.Fatalf("schedule fields missing %#v", out[0])
	}
	if out[0].SetpointsKW["bat1"][1] != -12 {
		t.Fatalf("setpoints missing %#v", out[0].SetpointsKW)
	}
}

func TestScheduleHandler_PortfolioFilter(t *testing.T) {
	src := &fakeSource{pubs: map[string]publish.Publication{"pf-a": testPublication(t)}}
	h := NewScheduleHandler(src)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/schedules?portfolio=pf-a", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/schedules?portfolio=pf-missing", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestScheduleHandler_MethodNotAllowed(t *testing.T) {
	h := NewScheduleHandler(&fakeSource{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/schedules", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}
