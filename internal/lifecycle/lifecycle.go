package lifecycle

import (
	"sync"
	"time"
)

var (
	mu            sync.RWMutex
	shutdownSince time.Time
)

// SetShuttingDown marks the process as draining (true) or serving (false). main calls it
// on SIGTERM/SIGINT before stopping the listener so /health reports shutting-down.
func SetShuttingDown(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if !v {
		shutdownSince = time.Time{}
		return
	}
	if shutdownSince.IsZero() {
		shutdownSince = time.Now()
	}
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	_, ok := ShutdownSince()
	return ok
}

// ShutdownSince returns when draining began.
func ShutdownSince() (time.Time, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return shutdownSince, !shutdownSince.IsZero()
}
