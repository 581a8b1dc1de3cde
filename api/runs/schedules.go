package runs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/volteq/flexplan/core/publish"
)

// ScheduleSource yields the most recent publication per portfolio. It is
// implemented by the app over its controllers.
type ScheduleSource interface {
	Portfolios() []string
	LastPublication(portfolio string) (publish.Publication, bool)
}

type scheduleOut struct {
	ScheduleID   string               `json:"schedule_id"`
	Portfolio    string               `json:"portfolio"`
	Seq          uint64               `json:"seq"`
	Stale        bool                 `json:"stale"`
	Status       string               `json:"status"`
	Objective    float64              `json:"objective"`
	Solver       string               `json:"solver"`
	CreatedAt    time.Time            `json:"created_at"`
	PeriodStarts []time.Time          `json:"period_starts"`
	AggregateKW  []float64            `json:"aggregate_kw"`
	SetpointsKW  map[string][]float64 `json:"setpoints_kw"`
}

// NewScheduleHandler exposes the latest published schedules via GET
// /api/schedules. An optional portfolio query parameter narrows the result
// to one portfolio and yields 404 when it has no plan yet.
func NewScheduleHandler(src ScheduleSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		portfolios := src.Portfolios()
		if pf := r.URL.Query().Get("portfolio"); pf != "" {
			portfolios = []string{pf}
		}
		out := make([]scheduleOut, 0, len(portfolios))
		for _, pf := range portfolios {
			p, ok := src.LastPublication(pf)
			if !ok {
				continue
			}
			out = append(out, toScheduleOut(p))
		}
		if r.URL.Query().Get("portfolio") != "" && len(out) == 0 {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func toScheduleOut(p publish.Publication) scheduleOut {
	s := p.Schedule
	starts := make([]time.Time, s.Horizon.Len())
	for i := range starts {
		starts[i] = s.Horizon.Period(i).Start
	}
	return scheduleOut{
		ScheduleID:   s.ID,
		Portfolio:    p.Portfolio,
		Seq:          p.Seq,
		Stale:        p.Stale,
		Status:       s.Status.String(),
		Objective:    s.Objective,
		Solver:       s.Solver,
		CreatedAt:    s.CreatedAt,
		PeriodStarts: starts,
		AggregateKW:  s.AggregateKW,
		SetpointsKW:  s.SetpointsKW,
	}
}
