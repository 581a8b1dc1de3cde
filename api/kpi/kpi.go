package kpi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	kpi "github.com/volteq/flexplan/core/metrics/kpi"
)

// dayView is the wire form of one daily KPI aggregate.
type dayView struct {
	Date             string  `json:"date"`
	PlannedKWh       float64 `json:"planned_kwh"`
	Publications     int     `json:"publications"`
	Stale            int     `json:"stale"`
	StaleRatio       float64 `json:"stale_ratio"`
	WorstDeviationKW float64 `json:"worst_deviation_kw"`
}

func viewOf(r kpi.Record) dayView {
	return dayView{
		Date:             r.Date.Format("2006-01-02"),
		PlannedKWh:       r.PlannedKWh,
		Publications:     r.Publications,
		Stale:            r.Stale,
		StaleRatio:       r.StaleRatio(),
		WorstDeviationKW: r.WorstDeviationKW,
	}
}

// NewKPIHandler exposes delivery KPIs via GET /api/portfolios/{name}/kpis.
// Optional start and end query parameters bound the window in RFC 3339;
// end defaults to now.
func NewKPIHandler(store kpi.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		portfolio, ok := portfolioFromPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		start, _ := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		end, _ := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		if end.IsZero() {
			end = time.Now()
		}
		recs, err := store.Query(portfolio, start, end)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views := make([]dayView, len(recs))
		for i, rec := range recs {
			views[i] = viewOf(rec)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	})
}

// portfolioFromPath extracts the portfolio segment from
// /api/portfolios/{name}/kpis.
func portfolioFromPath(p string) (string, bool) {
	rest := strings.TrimPrefix(p, "/api/portfolios/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] != "kpis" {
		return "", false
	}
	return parts[0], true
}
