package timeutil

import (
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	now = time.Now
)

// Now returns the current time from the active clock.
func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return now()
}

// SetClock swaps the clock used by Now and returns a restore func. Tests only.
func SetClock(fn func() time.Time) func() {
	mu.Lock()
	prev := now
	now = fn
	mu.Unlock()
	return func() {
		mu.Lock()
		now = prev
		mu.Unlock()
	}
}
