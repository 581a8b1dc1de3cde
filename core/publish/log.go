package publish

import (
	"context"

	"github.com/volteq/flexplan/core/logger"
)

// LogPublisher writes each publication to the logger. Useful as a default
// sink when no broker is configured.
type LogPublisher struct {
	Log logger.Logger
}

// NewLogPublisher returns a publisher logging through log.
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{Log: log}
}

// PublishSchedule implements Publisher.
func (l *LogPublisher) PublishSchedule(_ context.Context, p Publication) error {
	if l.Log == nil {
		return nil
	}
	l.Log.Infof("schedule published portfolio=%s id=%s seq=%d stale=%t status=%s periods=%d",
		p.Portfolio, p.Schedule.ID, p.Seq, p.Stale, p.Schedule.Status, len(p.Schedule.AggregateKW))
	return nil
}
