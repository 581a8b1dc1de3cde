package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/plan"
)

// Simplex solves the problem exactly with gonum's simplex method. The gonum
// call cannot be interrupted, so the budget is enforced from the outside: a
// greedy incumbent is computed first, and when the timer fires before the
// exact solve returns, the incumbent is handed out as a feasible plan while
// the abandoned goroutine finishes into the void.
type Simplex struct {
	// Tol is the pivot tolerance handed to gonum.
	Tol float64

	// Incumbent provides the fallback plan used when the budget expires.
	Incumbent Solver
}

// NewSimplex returns a simplex backend with the default tolerance and a
// greedy incumbent provider.
func NewSimplex() *Simplex {
	return &Simplex{Tol: 1e-7, Incumbent: NewGreedy()}
}

// Name implements Solver.
func (s *Simplex) Name() string { return "simplex" }

type simplexOut struct {
	objective float64
	x         []float64
	err       error
}

// Solve implements Solver.
func (s *Simplex) Solve(ctx context.Context, p *plan.Problem, budget time.Duration) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("simplex: nil problem")
	}
	if budget <= 0 {
		return Result{}, fmt.Errorf("simplex: non-positive budget %s", budget)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	deadline := time.Now().Add(budget)

	var incumbent *Result
	if s.Incumbent != nil {
		if inc, err := s.Incumbent.Solve(ctx, p, budget); err != nil {
			return Result{}, err
		} else if inc.Status.Usable() {
			incumbent = &inc
		}
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return s.budgetExpired(incumbent), nil
	}

	c, g, h, a, b := generalForm(p)
	out := make(chan simplexOut, 1)
	go func() {
		cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
		objective, xStd, err := lp.Simplex(cStd, aStd, bStd, s.Tol, nil)
		var x []float64
		if err == nil {
			// Convert splits each variable into a positive and negative part;
			// the original value is their difference.
			x = make([]float64, len(c))
			for i := range x {
				x[i] = xStd[i] - xStd[len(c)+i]
			}
		}
		out <- simplexOut{objective: objective, x: x, err: err}
	}()

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
		return s.budgetExpired(incumbent), nil
	case o := <-out:
		return mapOutcome(o), nil
	}
}

func (s *Simplex) budgetExpired(incumbent *Result) Result {
	if incumbent == nil {
		return Result{
			Status: model.StatusSolverError,
			Detail: "time budget exhausted before an incumbent was found",
		}
	}
	r := *incumbent
	r.Status = model.StatusFeasible
	r.Detail = "time budget exhausted, returning greedy incumbent"
	return r
}

func mapOutcome(o simplexOut) Result {
	switch {
	case o.err == nil:
		return Result{Status: model.StatusOptimal, Objective: o.objective, X: o.x}
	case errors.Is(o.err, lp.ErrInfeasible):
		return Result{Status: model.StatusInfeasible, Detail: o.err.Error()}
	case errors.Is(o.err, lp.ErrUnbounded):
		return Result{Status: model.StatusUnbounded, Detail: o.err.Error()}
	default:
		return Result{Status: model.StatusSolverError, Detail: o.err.Error()}
	}
}

// generalForm flattens the bounded-variable problem into gonum's general LP
// shape: minimize c'x subject to G x <= h and A x = b. Variable bounds become
// two G rows each, so every variable stays explicitly bounded and the LP can
// never be unbounded by construction.
func generalForm(p *plan.Problem) (c []float64, g mat.Matrix, h []float64, a mat.Matrix, b []float64) {
	n := p.NumVars()
	c = make([]float64, n)
	for i, v := range p.Vars {
		c[i] = v.Cost
	}

	ineqRows := len(p.Ineq) + 2*n
	gd := mat.NewDense(ineqRows, n, nil)
	h = make([]float64, ineqRows)
	for ri, row := range p.Ineq {
		for _, term := range row.Terms {
			gd.Set(ri, term.Var, term.Coef)
		}
		h[ri] = row.RHS
	}
	for i, v := range p.Vars {
		up := len(p.Ineq) + 2*i
		gd.Set(up, i, 1)
		h[up] = v.Upper
		gd.Set(up+1, i, -1)
		h[up+1] = -v.Lower
	}
	g = gd

	if len(p.Eq) > 0 {
		ad := mat.NewDense(len(p.Eq), n, nil)
		b = make([]float64, len(p.Eq))
		for ri, row := range p.Eq {
			for _, term := range row.Terms {
				ad.Set(ri, term.Var, term.Coef)
			}
			b[ri] = row.RHS
		}
		a = ad
	}
	return c, g, h, a, b
}
