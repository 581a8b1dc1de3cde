// Package infra holds the technical adapters: the MQTT publisher and
// telemetry listener, metrics sinks, persistent stores and the logger
// backend. Everything here implements an interface declared under core and
// stays replaceable.
package infra
