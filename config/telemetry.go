package config

import "strings"

// TelemetryConfig wires the asset state listener. Push mode has assets
// reporting spontaneously under StatePrefix, pull mode polls them over the
// request topic and collects answers under ResponsePrefix.
type TelemetryConfig struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode"`
	IntervalSeconds int    `json:"interval_seconds"`
	RequestTopic    string `json:"request_topic"`
	ResponsePrefix  string `json:"response_topic_prefix"`
	StatePrefix     string `json:"state_topic_prefix"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// PushEnabled reports whether spontaneous state reports are consumed.
// An unset mode means push only.
func (c TelemetryConfig) PushEnabled() bool {
	m := strings.ToLower(c.Mode)
	return m == "" || m == "push" || m == "hybrid"
}

// PullEnabled reports whether the listener polls assets on an interval.
func (c TelemetryConfig) PullEnabled() bool {
	m := strings.ToLower(c.Mode)
	return m == "pull" || m == "hybrid"
}

// Interval returns the poll interval in seconds, defaulting to 10.
func (c TelemetryConfig) Interval() int {
	if c.IntervalSeconds <= 0 {
		return 10
	}
	return c.IntervalSeconds
}

// Timeout returns the poll collection window in seconds, defaulting to 3.
func (c TelemetryConfig) Timeout() int {
	if c.TimeoutSeconds <= 0 {
		return 3
	}
	return c.TimeoutSeconds
}
