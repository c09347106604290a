// Package flood limits how often a single requester may trigger resolutions.
package flood

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// cleanupInterval is how often idle requesters are forgotten
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a requester may stay silent before it is forgotten
	idleTimeout = 10 * time.Minute
)

// Floodgate gives every requester a token bucket that refills limitPerMinute
// tokens per minute and holds at most limitPerMinute of them.
type Floodgate struct {
	limitPerMinute int
	now            func() time.Time

	mu      sync.Mutex
	entries map[string]*requester
}

type requester struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Option func(*Floodgate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(fg *Floodgate) {
		fg.now = now
	}
}

// New creates a Floodgate. A non-positive limit lets every request through.
func New(limitPerMinute int, opts ...Option) *Floodgate {
	fg := &Floodgate{
		limitPerMinute: limitPerMinute,
		now:            time.Now,
		entries:        make(map[string]*requester),
	}
	for _, opt := range opts {
		opt(fg)
	}
	return fg
}

// Allow reports whether key may issue another request now.
func (fg *Floodgate) Allow(key string) bool {
	if fg.limitPerMinute <= 0 {
		return true
	}

	now := fg.now()

	fg.mu.Lock()
	defer fg.mu.Unlock()

	entry, ok := fg.entries[key]
	if !ok {
		entry = &requester{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(fg.limitPerMinute)), fg.limitPerMinute),
		}
		fg.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Run forgets idle requesters until ctx is done.
func (fg *Floodgate) Run(ctx context.Context) error {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fg.performCleanup()
		}
	}
}

func (fg *Floodgate) performCleanup() {
	cutoff := fg.now().Add(-idleTimeout)

	fg.mu.Lock()
	defer fg.mu.Unlock()

	for key, entry := range fg.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.entries, key)
		}
	}
}

// GetStats returns statistics about the floodgate for monitoring.
func (fg *Floodgate) GetStats() Stats {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	return Stats{
		ActiveRequesters: len(fg.entries),
		LimitPerMinute:   fg.limitPerMinute,
	}
}

type Stats struct {
	ActiveRequesters int `json:"active_requesters"`
	LimitPerMinute   int `json:"limit_per_minute"`
}
