// Package monitoring routes unexpected failures to an error tracker. The
// planning core reports through the package-level functions; the concrete
// tracker is injected once at startup.
package monitoring

import "time"

// Monitor receives errors the service cannot handle locally.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor drops everything. Active until Init installs a real monitor.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var active Monitor = NopMonitor{}

// Init installs the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		active = m
	}
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	active.CaptureException(err, tags)
}

// Recover captures panics in goroutines. Call it deferred.
func Recover() {
	active.Recover()
}

// Flush drains buffered events before shutdown.
func Flush(d time.Duration) {
	active.Flush(d)
}
