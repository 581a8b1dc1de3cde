package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/replan"
)

// Sink is the part of the fleet registry the feed refreshes. Baselines apply
// silently; the connector raises one forecast-update trigger per portfolio
// batch instead of one per asset.
type Sink interface {
	SetBaseline(portfolio, assetID string, kw []model.SeriesPoint) error
}

// Connector delivers requirement and baseline forecasts until the context
// ends.
type Connector interface {
	Start(ctx context.Context) error
}

// NewConnector creates a connector depending on cfg.Mode ("mock" or "http").
func NewConnector(cfg config.FeedConfig, planner replan.Config, cache *Cache, sink Sink, notify func(model.Trigger)) (Connector, error) {
	switch strings.ToLower(cfg.Mode) {
	case "mock", "":
		return NewMock(cfg.Mock, planner, cache, sink, notify), nil
	case "http":
		return NewClient(cfg.Client, cache, sink, notify), nil
	default:
		return nil, fmt.Errorf("unknown feed mode %s", cfg.Mode)
	}
}
