package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memImpressions mirrors the unique (device, hash, day) constraint
type memImpressions struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newMemImpressions() *memImpressions {
	return &memImpressions{seen: make(map[string]time.Time)}
}

func (m *memImpressions) InsertOnce(ctx context.Context, deviceID, hashID string, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := deviceID + "|" + hashID + "|" + day.Format("2006-01-02")
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = day
	return true, nil
}

func (m *memImpressions) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for k, day := range m.seen {
		if day.Before(cutoff) {
			delete(m.seen, k)
			purged++
		}
	}
	return purged, nil
}

func TestCheckAndConsumeDeniesOverBudget(t *testing.T) {
	g := NewGovernor(nil, newMemImpressions())
	ctx := context.Background()
	limit := Limit{Max: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		d, err := g.CheckAndConsume(ctx, "api", "device-1", limit)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
	}

	d, err := g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestCheckAndConsumeIsolatesIdentitiesAndScopes(t *testing.T) {
	g := NewGovernor(nil, newMemImpressions())
	ctx := context.Background()
	limit := Limit{Max: 1, Window: time.Minute}

	d, err := g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// other identity has its own budget
	d, err = g.CheckAndConsume(ctx, "api", "device-2", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// same identity, other scope has its own budget
	d, err = g.CheckAndConsume(ctx, "play", "device-1", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestCheckAndConsumeWindowResets(t *testing.T) {
	g := NewGovernor(nil, newMemImpressions())
	ctx := context.Background()
	limit := Limit{Max: 1, Window: 20 * time.Millisecond}

	d, err := g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	time.Sleep(25 * time.Millisecond)

	d, err = g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// errCounter always fails, forcing the in-memory fallback
type errCounter struct{}

func (errCounter) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 0, 0, assert.AnError
}

func TestCheckAndConsumeFallsBackOnCounterError(t *testing.T) {
	g := NewGovernor(errCounter{}, newMemImpressions())
	ctx := context.Background()
	limit := Limit{Max: 1, Window: time.Minute}

	d, err := g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = g.CheckAndConsume(ctx, "api", "device-1", limit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestMemoryWindowSweepsExpiredEntries(t *testing.T) {
	m := newMemoryWindow()

	for i := 0; i < 50; i++ {
		m.incr(fmt.Sprintf("stale-%d", i), time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	// next insert past the sweep interval drops every expired entry
	m.lastSweep = time.Now().Add(-2 * sweepInterval)
	m.incr("live", time.Minute)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Len(t, m.entries, 1)
	assert.Contains(t, m.entries, "live")
}

func TestRecordImpressionDailyDedup(t *testing.T) {
	g := NewGovernor(nil, newMemImpressions())
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	counted, err := g.RecordImpression(ctx, "device-1", "hash-1", now)
	require.NoError(t, err)
	assert.True(t, counted)

	// replay later the same day is not counted
	counted, err = g.RecordImpression(ctx, "device-1", "hash-1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, counted)

	// next day counts again
	counted, err = g.RecordImpression(ctx, "device-1", "hash-1", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, counted)

	// different link same day counts
	counted, err = g.RecordImpression(ctx, "device-1", "hash-2", now)
	require.NoError(t, err)
	assert.True(t, counted)
}

func TestPurgeImpressions(t *testing.T) {
	store := newMemImpressions()
	g := NewGovernor(nil, store)
	ctx := context.Background()

	old := time.Now().UTC().Add(-100 * 24 * time.Hour)
	_, err := g.RecordImpression(ctx, "device-1", "hash-old", old)
	require.NoError(t, err)
	_, err = g.RecordImpression(ctx, "device-1", "hash-new", time.Now())
	require.NoError(t, err)

	purged, err := g.PurgeImpressions(ctx, 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
