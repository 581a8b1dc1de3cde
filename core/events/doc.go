// Package events defines the planning events emitted on the event bus.
//
// Available event types:
//   - TriggerEvent: a re-planning trigger was accepted or coalesced
//   - RunEvent: a planning run changed phase or finished
//   - PublishEvent: a schedule (or stale marker) went out to collaborators
//   - FallbackEvent: the controller degraded to a relaxed retry or stale plan
package events
