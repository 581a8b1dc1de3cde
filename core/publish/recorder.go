package publish

import (
	"context"
	"sync"
)

// Recorder keeps publications in memory. It backs tests and the one-shot
// planning command, and deduplicates repeated emissions of the same schedule
// the way the broker publisher does.
type Recorder struct {
	mu   sync.Mutex
	seen map[string]struct{}
	pubs []Publication
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{seen: make(map[string]struct{})}
}

// PublishSchedule implements Publisher.
func (r *Recorder) PublishSchedule(_ context.Context, p Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := p.Key()
	if _, ok := r.seen[key]; ok {
		return nil
	}
	r.seen[key] = struct{}{}
	r.pubs = append(r.pubs, p)
	return nil
}

// Publications returns a copy of everything recorded, in delivery order.
func (r *Recorder) Publications() []Publication {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Publication, len(r.pubs))
	copy(out, r.pubs)
	return out
}

// Last returns the most recent publication, if any.
func (r *Recorder) Last() (Publication, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pubs) == 0 {
		return Publication{}, false
	}
	return r.pubs[len(r.pubs)-1], true
}
