package history

import (
	"context"
	"sync"

	"github.com/volteq/flexplan/core/model"
)

// MemoryStore keeps run records in memory, capped to a maximum count. Useful
// for tests and for deployments that only need the recent past.
type MemoryStore struct {
	mu   sync.RWMutex
	runs []model.Run
	max  int
}

// NewMemoryStore returns a store holding at most max records; older records
// are evicted first. A non-positive max keeps everything.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{max: max}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, run model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	if s.max > 0 && len(s.runs) > s.max {
		s.runs = s.runs[len(s.runs)-s.max:]
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, q Query) ([]model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Run
	for _, r := range s.runs {
		if q.Portfolio != "" && r.Portfolio != q.Portfolio {
			continue
		}
		if !q.Start.IsZero() && r.StartedAt.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && r.StartedAt.After(q.End) {
			continue
		}
		if q.Status != model.StatusUnknown && r.Status != q.Status {
			continue
		}
		res = append(res, r)
		if q.Limit > 0 && len(res) == q.Limit {
			break
		}
	}
	return res, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
