package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volteq/flexplan/core/events"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/internal/eventbus"
)

type fallbackCapture struct {
	coremetrics.NopSink
	mu   sync.Mutex
	recs []coremetrics.FallbackRecord
}

func (f *fallbackCapture) RecordFallback(rec coremetrics.FallbackRecord) error {
	f.mu.Lock()
	f.recs = append(f.recs, rec)
	f.mu.Unlock()
	return nil
}

func (f *fallbackCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func TestEventCollectorRecordsFallbacks(t *testing.T) {
	bus := eventbus.New[events.Event](16)
	defer bus.Close()
	sink := &fallbackCapture{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)
	bus.Publish(events.FallbackEvent{Portfolio: "pf", RunID: "r1", Relaxed: true, Reason: "infeasible"})
	bus.Publish(events.RunEvent{Portfolio: "pf", RunID: "r1", Phase: "solving"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	rec := sink.recs[0]
	sink.mu.Unlock()
	require.Equal(t, "pf", rec.Portfolio)
	require.True(t, rec.Relaxed)
	require.Equal(t, "infeasible", rec.Reason)
}
