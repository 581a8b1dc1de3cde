package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/volteq/flexplan/core/model"
)

func samplePub(id string, seq uint64, stale bool) Publication {
	return Publication{
		Portfolio: "pf",
		Seq:       seq,
		Stale:     stale,
		Schedule:  model.Schedule{ID: id, Portfolio: "pf", Status: model.StatusOptimal},
	}
}

func TestRecorderDeduplicates(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	if err := r.PublishSchedule(ctx, samplePub("s1", 1, false)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := r.PublishSchedule(ctx, samplePub("s1", 1, false)); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if got := len(r.Publications()); got != 1 {
		t.Fatalf("expected 1 recorded publication, got %d", got)
	}
}

func TestRecorderStaleIsDistinct(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	if err := r.PublishSchedule(ctx, samplePub("s1", 1, false)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := r.PublishSchedule(ctx, samplePub("s1", 2, true)); err != nil {
		t.Fatalf("stale publish: %v", err)
	}
	pubs := r.Publications()
	if len(pubs) != 2 {
		t.Fatalf("expected fresh and stale publications, got %d", len(pubs))
	}
	last, ok := r.Last()
	if !ok || !last.Stale || last.Seq != 2 {
		t.Fatalf("unexpected last publication %+v", last)
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) PublishSchedule(context.Context, Publication) error { return f.err }

func TestMultiStopsOnError(t *testing.T) {
	boom := errors.New("broker down")
	rec := NewRecorder()
	m := NewMulti(NewRecorder(), failingPublisher{err: boom}, rec)
	err := m.PublishSchedule(context.Background(), samplePub("s1", 1, false))
	if !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if len(rec.Publications()) != 0 {
		t.Fatalf("publisher after failure should not receive the publication")
	}
}

func TestNopAndLogPublishers(t *testing.T) {
	ctx := context.Background()
	if err := (NopPublisher{}).PublishSchedule(ctx, samplePub("s1", 1, false)); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
	lp := NewLogPublisher(nil)
	if err := lp.PublishSchedule(ctx, samplePub("s2", 2, true)); err != nil {
		t.Fatalf("log publish: %v", err)
	}
}
