package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// WindowCounter increments a fixed-window counter and returns the new
// count plus the time remaining in the window
type WindowCounter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// ImpressionRecorder deduplicates daily impressions
type ImpressionRecorder interface {
	InsertOnce(ctx context.Context, deviceID, hashID string, day time.Time) (bool, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Limit is one fixed-window rate limit policy
type Limit struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of a rate-limit check. RetryAfter is set only
// when the request is denied.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Governor enforces per-identity fixed-window rate limits and daily
// impression dedup. When the shared counter backend is unreachable it
// degrades to a per-process in-memory window rather than failing open
// entirely.
type Governor struct {
	counter     WindowCounter
	fallback    *memoryWindow
	impressions ImpressionRecorder
}

// NewGovernor creates a governor backed by counter, with an in-memory
// fallback used when counter is nil or errors
func NewGovernor(counter WindowCounter, impressions ImpressionRecorder) *Governor {
	return &Governor{
		counter:     counter,
		fallback:    newMemoryWindow(),
		impressions: impressions,
	}
}

// CheckAndConsume atomically consumes one unit of the identity's budget
// for the named scope. The first request in a window starts it; request
// N+1 within the window is denied with the window's remaining duration
// as RetryAfter.
func (g *Governor) CheckAndConsume(ctx context.Context, scope, identity string, limit Limit) (Decision, error) {
	key := fmt.Sprintf("rl:%s:%s", scope, identity)

	var count int64
	var ttl time.Duration
	if g.counter == nil {
		count, ttl = g.fallback.incr(key, limit.Window)
	} else {
		var err error
		count, ttl, err = g.counter.IncrWindow(ctx, key, limit.Window)
		if err != nil {
			log.Printf("rate limit backend unavailable, using in-memory window: %v", err)
			count, ttl = g.fallback.incr(key, limit.Window)
		}
	}

	if count > int64(limit.Max) {
		if ttl <= 0 {
			ttl = limit.Window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}
	remaining := limit.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// RecordImpression counts at most one impression per (device, link, UTC
// day). Returns true when this call was the one that counted.
func (g *Governor) RecordImpression(ctx context.Context, deviceID, hashID string, at time.Time) (bool, error) {
	day := at.UTC().Truncate(24 * time.Hour)
	return g.impressions.InsertOnce(ctx, deviceID, hashID, day)
}

// PurgeImpressions deletes impression rows older than the retention
// period
func (g *Governor) PurgeImpressions(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Truncate(24 * time.Hour)
	return g.impressions.PurgeBefore(ctx, cutoff)
}

// sweepInterval bounds how long a dead fallback entry can linger
const sweepInterval = time.Minute

// memoryWindow is the per-process fixed-window fallback. Counts are not
// shared between instances, so it is strictly looser than the backend
// it stands in for. Expired entries are swept on insert so the map
// stays bounded by the set of identities active within one sweep
// interval.
type memoryWindow struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	lastSweep time.Time
}

type windowEntry struct {
	count   int64
	resetAt time.Time
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{
		entries:   make(map[string]*windowEntry),
		lastSweep: time.Now(),
	}
}

func (m *memoryWindow) incr(key string, window time.Duration) (int64, time.Duration) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= sweepInterval {
		for k, e := range m.entries {
			if !now.Before(e.resetAt) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.resetAt.Sub(now)
}
