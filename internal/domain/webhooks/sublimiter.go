package webhooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// subscriptionLimiter caps concurrent in-flight HTTP deliveries per
// subscription so a burst of events cannot overwhelm a small partner
// endpoint. Concurrency across different subscriptions stays unbounded
// here; the worker pool size is the overall cap.
//
// Entries are reference-counted and removed when idle, so the map does not
// grow with the total number of subscriptions ever seen.
type subscriptionLimiter struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*semEntry
	cap     int64
}

type semEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newSubscriptionLimiter(perSubscription int) *subscriptionLimiter {
	if perSubscription <= 0 {
		perSubscription = 1
	}
	return &subscriptionLimiter{
		entries: make(map[uuid.UUID]*semEntry),
		cap:     int64(perSubscription),
	}
}

// Acquire blocks until a slot for the subscription is available or ctx is
// done. The returned release function must be called exactly once.
func (l *subscriptionLimiter) Acquire(ctx context.Context, subID uuid.UUID) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[subID]
	if !ok {
		entry = &semEntry{sem: semaphore.NewWeighted(l.cap)}
		l.entries[subID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.release(subID, entry, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(subID, entry, true) })
	}, nil
}

func (l *subscriptionLimiter) release(subID uuid.UUID, entry *semEntry, held bool) {
	if held {
		entry.sem.Release(1)
	}
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, subID)
	}
	l.mu.Unlock()
}
