package model

import "time"

// TriggerKind identifies why a re-planning run was requested.
type TriggerKind int

const (
	TriggerRollover TriggerKind = iota
	TriggerForecastUpdate
	TriggerAssetChange
	TriggerManual
)

// String returns a human-readable representation of the trigger kind.
func (k TriggerKind) String() string {
	switch k {
	case TriggerRollover:
		return "rollover"
	case TriggerForecastUpdate:
		return "forecast_update"
	case TriggerAssetChange:
		return "asset_change"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Urgent reports whether the trigger invalidates a solve already in flight.
// Asset changes do: the running problem was built from a portfolio that no
// longer exists in that shape.
func (k TriggerKind) Urgent() bool { return k == TriggerAssetChange }

// Trigger is a request to produce a fresh balancing plan for a portfolio.
type Trigger struct {
	Kind      TriggerKind
	Portfolio string
	At        time.Time // when the trigger was raised
	Reason    string    // free-form origin, e.g. "feed poll" or an asset ID
}
