package feed

import (
	"context"
	"sort"
	"sync"

	"github.com/volteq/flexplan/core/model"
)

// Cache holds the most recent requirement trajectories per portfolio and
// serves them to planning runs. It implements replan.RequirementSource.
type Cache struct {
	mu   sync.RWMutex
	reqs map[string]map[string]model.Requirement
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{reqs: make(map[string]map[string]model.Requirement)}
}

// SetAll replaces one portfolio's requirement set and reports whether the
// stored set actually changed. Connectors use the report to decide whether a
// replanning trigger is due.
func (c *Cache) SetAll(portfolio string, reqs []model.Requirement) bool {
	next := make(map[string]model.Requirement, len(reqs))
	for _, r := range reqs {
		cp := r
		cp.TargetKW = append([]model.SeriesPoint(nil), r.TargetKW...)
		next[r.Product] = cp
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := !equalRequirementSet(c.reqs[portfolio], next)
	c.reqs[portfolio] = next
	return changed
}

// Requirements returns the cached trajectories sorted by product, so plans
// stay deterministic. Portfolios the feed has not delivered yet yield an
// empty set, which planning treats as no market obligation.
func (c *Cache) Requirements(_ context.Context, portfolio string, _ model.Horizon) ([]model.Requirement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stored := c.reqs[portfolio]
	out := make([]model.Requirement, 0, len(stored))
	for _, r := range stored {
		cp := r
		cp.TargetKW = append([]model.SeriesPoint(nil), r.TargetKW...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out, nil
}

func equalRequirementSet(a, b map[string]model.Requirement) bool {
	if len(a) != len(b) {
		return false
	}
	for product, ra := range a {
		rb, ok := b[product]
		if !ok || !equalRequirement(ra, rb) {
			return false
		}
	}
	return true
}

func equalRequirement(a, b model.Requirement) bool {
	if a.Product != b.Product || a.ToleranceKW != b.ToleranceKW || a.ToleranceRel != b.ToleranceRel {
		return false
	}
	return equalSeries(a.TargetKW, b.TargetKW)
}

func equalSeries(a, b []model.SeriesPoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}
