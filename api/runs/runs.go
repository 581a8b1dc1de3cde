package runs

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/volteq/flexplan/core/history"
	"github.com/volteq/flexplan/core/model"
)

// NewRunHandler returns an HTTP handler exposing run history via GET
// /api/runs. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewRunHandler(store history.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := history.Query{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.Portfolio = r.URL.Query().Get("portfolio")
		if st := r.URL.Query().Get("status"); st != "" {
			if v, ok := statusFromString(st); ok {
				q.Status = v
			}
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				q.Limit = n
			}
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func statusFromString(s string) (model.SolveStatus, bool) {
	switch s {
	case "optimal":
		return model.StatusOptimal, true
	case "feasible":
		return model.StatusFeasible, true
	case "infeasible":
		return model.StatusInfeasible, true
	case "unbounded":
		return model.StatusUnbounded, true
	case "solver_error":
		return model.StatusSolverError, true
	default:
		return model.StatusUnknown, false
	}
}
