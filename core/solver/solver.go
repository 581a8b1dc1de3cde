// Package solver runs optimization problems through interchangeable backends
// under a hard time budget. Solver outcomes are values, not errors: an
// infeasible problem is a legitimate business result the caller must handle,
// while a Go error means the call itself was misused or aborted.
package solver

import (
	"context"
	"time"

	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/plan"
)

// Result is the uniform outcome of one solver invocation.
type Result struct {
	Status    model.SolveStatus
	Objective float64

	// X is the assignment indexed by problem variable, nil unless the status
	// is usable.
	X []float64

	// Detail explains non-optimal outcomes: the violated model for
	// infeasibility, the failure cause for solver errors, the fallback origin
	// for budget-capped feasible results.
	Detail string
}

// Solver is one optimization backend. Implementations must return within the
// budget, honour context cancellation, and never mutate the problem.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *plan.Problem, budget time.Duration) (Result, error)
}
