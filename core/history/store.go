// Package history persists planning runs so operators can audit what was
// planned, when, and why it degraded.
package history

import (
	"context"
	"time"

	"github.com/volteq/flexplan/core/model"
)

// Query filters run records. Zero-value fields match everything.
type Query struct {
	Portfolio string
	Start     time.Time
	End       time.Time
	Status    model.SolveStatus // StatusUnknown matches all statuses
	Limit     int               // 0 means unlimited
}

// Store persists run records and supports querying them back in start order.
type Store interface {
	Append(ctx context.Context, run model.Run) error
	Query(ctx context.Context, q Query) ([]model.Run, error)
	Close() error
}

// NopStore discards everything. Used when run history is disabled.
type NopStore struct{}

// Append implements Store.
func (NopStore) Append(context.Context, model.Run) error { return nil }

// Query implements Store.
func (NopStore) Query(context.Context, Query) ([]model.Run, error) { return nil, nil }

// Close implements Store.
func (NopStore) Close() error { return nil }
