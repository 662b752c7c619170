package email

import (
	"sync"
	"time"
)

// throttle suppresses repeat alerts with the same subject inside the
// minimum interval.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	lastSent map[string]time.Time
}

func newThrottle(interval time.Duration) *throttle {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &throttle{
		interval: interval,
		lastSent: make(map[string]time.Time),
	}
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}
