package apikeys

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// FlushInterval is how often buffered usage is written to the database.
	FlushInterval = 30 * time.Second

	// MaxBufferSize is the number of distinct keys buffered before a flush
	// is forced.
	MaxBufferSize = 100
)

// usageDelta accumulates verify hits for a single key between flushes.
type usageDelta struct {
	requests int64
	lastUsed time.Time
}

// UsageRecorder buffers per-key usage (usage count and last-used time) in
// memory and flushes it to the repository periodically. Verify calls only
// touch the in-memory buffer, so the write never adds latency to the
// authenticating request. Safe for concurrent use.
type UsageRecorder struct {
	mu      sync.Mutex
	counts  map[uuid.UUID]*usageDelta
	repo    Repository
	ticker  *time.Ticker
	done    chan struct{}
	wg      sync.WaitGroup
	maxSize int
	logger  zerolog.Logger
	once    sync.Once
}

// NewUsageRecorder creates a recorder. Call Start() to begin the background
// flush goroutine and Stop() on shutdown for a final flush.
func NewUsageRecorder(repo Repository, logger zerolog.Logger) *UsageRecorder {
	return &UsageRecorder{
		counts:  make(map[uuid.UUID]*usageDelta),
		repo:    repo,
		maxSize: MaxBufferSize,
		done:    make(chan struct{}),
		logger:  logger.With().Str("component", "usage_recorder").Logger(),
	}
}

// Start begins the periodic flush goroutine. Subsequent calls are no-ops.
func (r *UsageRecorder) Start() {
	r.mu.Lock()
	if r.ticker != nil {
		r.mu.Unlock()
		return
	}
	r.ticker = time.NewTicker(FlushInterval)
	r.wg.Add(1)
	r.mu.Unlock()

	go r.flushLoop()
	r.logger.Info().Dur("interval", FlushInterval).Msg("usage recorder started")
}

func (r *UsageRecorder) flushLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.flush()
		case <-r.done:
			r.flush()
			return
		}
	}
}

// Touch records one successful verification of the key.
func (r *UsageRecorder) Touch(keyID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delta, ok := r.counts[keyID]
	if !ok {
		delta = &usageDelta{}
		r.counts[keyID] = delta
	}
	delta.requests++
	if at.After(delta.lastUsed) {
		delta.lastUsed = at
	}

	if len(r.counts) >= r.maxSize {
		// Swap the buffer under the lock, flush the snapshot outside it.
		snapshot := r.counts
		r.counts = make(map[uuid.UUID]*usageDelta)
		go r.flushSnapshot(snapshot)
	}
}

func (r *UsageRecorder) flush() {
	r.mu.Lock()
	if len(r.counts) == 0 {
		r.mu.Unlock()
		return
	}
	snapshot := r.counts
	r.counts = make(map[uuid.UUID]*usageDelta)
	r.mu.Unlock()

	r.flushSnapshot(snapshot)
}

func (r *UsageRecorder) flushSnapshot(snapshot map[uuid.UUID]*usageDelta) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for keyID, delta := range snapshot {
		if err := r.repo.RecordUsage(ctx, keyID, delta.requests, delta.lastUsed); err != nil {
			r.logger.Warn().
				Err(err).
				Str("key_id", keyID.String()).
				Int64("requests", delta.requests).
				Msg("usage flush failed; counts dropped")
		}
	}
}

// Stop halts the flush loop after one final flush. Safe to call more than
// once, and safe to call without Start.
func (r *UsageRecorder) Stop() {
	r.once.Do(func() { close(r.done) })
	r.mu.Lock()
	started := r.ticker != nil
	if started {
		r.ticker.Stop()
	}
	r.mu.Unlock()
	if started {
		r.wg.Wait()
	} else {
		r.flush()
	}
}
