package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/volteq/flexplan/core/publish"
)

// Publisher mirrors the core publish.Publisher interface.
type Publisher = publish.Publisher

// MockPublisher is a simple publisher used in tests. It records the last
// publication per portfolio and can be told to fail specific portfolios.
type MockPublisher struct {
	Schedules      map[string]publish.Publication
	FailPortfolios map[string]bool
	mu             sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Schedules:      make(map[string]publish.Publication),
		FailPortfolios: make(map[string]bool),
	}
}

// PublishSchedule records the publication or returns an error if configured
// to fail.
func (m *MockPublisher) PublishSchedule(_ context.Context, p publish.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPortfolios[p.Portfolio] {
		return fmt.Errorf("publish failed")
	}
	m.Schedules[p.Portfolio] = p
	return nil
}

// Last returns the last recorded publication for the portfolio.
func (m *MockPublisher) Last(portfolio string) (publish.Publication, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Schedules[portfolio]
	return p, ok
}
