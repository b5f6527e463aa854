package telemetry

import "sync/atomic"

type Provider interface {
	Get() *Telemetry
}

// Latest is a Provider holding the most recent snapshot.
type Latest struct {
	v atomic.Pointer[Telemetry]
}

func (l *Latest) Set(t *Telemetry) {
	l.v.Store(t)
}

// Get returns the most recent snapshot, or nil if none was set.
func (l *Latest) Get() *Telemetry {
	return l.v.Load()
}
