// Package logger declares the logging contract the planning core writes
// against. Implementations live under infra/logger so core packages stay
// free of backend imports.
package logger

// Logger is the leveled logger handed to planning components. Debugw carries
// structured fields for high-volume diagnostics, the formatted variants
// cover everything else.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
