package apikeys

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const limiterIdleEviction = 2 * time.Hour

// issuanceLimiter enforces the per-organization key minting quota. It is an
// explicit process-wide object with a cleanup loop and Close(); when the
// gateway runs as multiple instances the quota is per instance, which is
// documented as the accepted bound.
type issuanceLimiter struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*limiterEntry
	perHour int
	done    chan struct{}
	once    sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIssuanceLimiter builds a limiter allowing perHour issuances per org.
// perHour <= 0 disables limiting.
func newIssuanceLimiter(perHour int) *issuanceLimiter {
	l := &issuanceLimiter{
		entries: make(map[uuid.UUID]*limiterEntry),
		perHour: perHour,
		done:    make(chan struct{}),
	}
	if perHour > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow reports whether the org may mint another key right now.
func (l *issuanceLimiter) Allow(orgID uuid.UUID) bool {
	if l.perHour <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[orgID]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour),
		}
		l.entries[orgID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

func (l *issuanceLimiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.done:
			return
		}
	}
}

func (l *issuanceLimiter) evictIdle() {
	cutoff := time.Now().Add(-limiterIdleEviction)
	l.mu.Lock()
	defer l.mu.Unlock()
	for org, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, org)
		}
	}
}

// Close stops the cleanup loop. Safe to call more than once.
func (l *issuanceLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}
