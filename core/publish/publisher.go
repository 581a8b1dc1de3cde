// Package publish delivers finished schedules to downstream collaborators:
// dispatch executors, market submission, monitoring. Publications carry a
// per-portfolio sequence so consumers can detect reordering, and a stale flag
// for re-emissions of the last-known-good plan.
package publish

import (
	"context"

	"github.com/volteq/flexplan/core/model"
)

// Publication is one outbound schedule emission.
type Publication struct {
	Portfolio string
	Seq       uint64
	Stale     bool
	Schedule  model.Schedule
}

// Key identifies a publication for idempotence checks: re-publishing the same
// schedule in the same freshness state must not change downstream state.
func (p Publication) Key() string {
	if p.Stale {
		return p.Schedule.ID + ":stale"
	}
	return p.Schedule.ID
}

// Publisher delivers publications. Implementations must be safe for
// sequential use by one controller and should deduplicate on Key.
type Publisher interface {
	PublishSchedule(ctx context.Context, p Publication) error
}

// NopPublisher drops publications.
type NopPublisher struct{}

// PublishSchedule implements Publisher.
func (NopPublisher) PublishSchedule(context.Context, Publication) error { return nil }

// Multi fans one publication out to several publishers, stopping at the
// first error so the controller sees delivery failures.
type Multi struct {
	Publishers []Publisher
}

// NewMulti combines publishers.
func NewMulti(pubs ...Publisher) *Multi {
	return &Multi{Publishers: pubs}
}

// PublishSchedule implements Publisher.
func (m *Multi) PublishSchedule(ctx context.Context, p Publication) error {
	for _, pub := range m.Publishers {
		if err := pub.PublishSchedule(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
