package kpi

import (
	"sort"
	"sync"
	"time"
)

type dayKey struct {
	portfolio string
	day       time.Time
}

// MemoryStore aggregates records per portfolio-day without persistence. The
// service falls back to it when no sqlite store is configured; tests use it
// directly.
type MemoryStore struct {
	mu   sync.RWMutex
	days map[dayKey]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[dayKey]Record)}
}

// Add folds the record into the aggregate of its portfolio and day: energy
// and counters sum, the worst deviation keeps its maximum.
func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := dayKey{portfolio: r.Portfolio, day: Day(r.Date)}
	agg, ok := s.days[k]
	if !ok {
		agg = Record{Portfolio: r.Portfolio, Date: k.day}
	}
	agg.PlannedKWh += r.PlannedKWh
	agg.Publications += r.Publications
	agg.Stale += r.Stale
	if r.WorstDeviationKW > agg.WorstDeviationKW {
		agg.WorstDeviationKW = r.WorstDeviationKW
	}
	s.days[k] = agg
	return nil
}

// Query returns the daily aggregates of one portfolio between start and end
// inclusive, ordered by day.
func (s *MemoryStore) Query(portfolio string, start, end time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	from, to := Day(start), Day(end)
	var res []Record
	for k, rec := range s.days {
		if k.portfolio != portfolio || k.day.Before(from) || k.day.After(to) {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
