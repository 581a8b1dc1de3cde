// Package metrics defines the observability surface of the planning core.
// Sinks receive run, publication and trigger records; implementations live in
// infra and are combined with NewMultiSink when more than one is configured.
// Capability interfaces keep optional record kinds optional: a sink that only
// understands runs still works next to one that records everything.
package metrics
