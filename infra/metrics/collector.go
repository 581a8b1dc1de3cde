package metrics

import (
	"context"
	"time"

	"github.com/volteq/flexplan/core/events"
	coremetrics "github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events not already recorded at their source, currently degradations.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if fe, ok := ev.(events.FallbackEvent); ok {
					if r, ok := sink.(coremetrics.FallbackRecorder); ok {
						_ = r.RecordFallback(coremetrics.FallbackRecord{
							Portfolio: fe.Portfolio,
							RunID:     fe.RunID,
							Relaxed:   fe.Relaxed,
							Reason:    fe.Reason,
							Time:      time.Now(),
						})
					}
				}
			}
		}
	}()
}
