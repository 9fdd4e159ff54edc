package di

import (
	"sync/atomic"
	"time"
)

// ColdStartTracker reports whether a Lambda invocation is the first one
// served by this execution environment.
type ColdStartTracker struct {
	startedAt time.Time
	served    atomic.Bool
}

// NewColdStartTracker starts the clock.
func NewColdStartTracker() *ColdStartTracker {
	return &ColdStartTracker{startedAt: time.Now()}
}

// Invoke marks an invocation and reports whether it was the cold one.
func (t *ColdStartTracker) Invoke() bool {
	return !t.served.Swap(true)
}

// SinceStart is the time since the environment was initialized.
func (t *ColdStartTracker) SinceStart() time.Duration {
	return time.Since(t.startedAt)
}
