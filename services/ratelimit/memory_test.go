package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter()
	now := start
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_AdmitsUpToMaxThenRejects(t *testing.T) {
	l, _ := newClockedLimiter(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	policy := Policy{Max: 5, Window: time.Minute}

	for i := 0; i < 5; i++ {
		res, err := l.Allow(context.Background(), "user:1", policy)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res, err := l.Allow(context.Background(), "user:1", policy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestAllow_WindowSlides(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newClockedLimiter(start)
	policy := Policy{Max: 2, Window: time.Minute}

	res, _ := l.Allow(context.Background(), "k", policy)
	assert.True(t, res.Allowed)

	*clock = start.Add(30 * time.Second)
	res, _ = l.Allow(context.Background(), "k", policy)
	assert.True(t, res.Allowed)

	*clock = start.Add(45 * time.Second)
	res, _ = l.Allow(context.Background(), "k", policy)
	assert.False(t, res.Allowed)

	// First admission ages out at start+60s.
	*clock = start.Add(61 * time.Second)
	res, _ = l.Allow(context.Background(), "k", policy)
	assert.True(t, res.Allowed)
}

func TestAllow_RetryAfterIsTimeUntilOldestExpires(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newClockedLimiter(start)
	policy := Policy{Max: 1, Window: time.Minute}

	res, _ := l.Allow(context.Background(), "k", policy)
	require.True(t, res.Allowed)

	*clock = start.Add(20 * time.Second)
	res, _ = l.Allow(context.Background(), "k", policy)
	require.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
}

func TestAllow_RetryAfterRoundsUpToWholeSeconds(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newClockedLimiter(start)
	policy := Policy{Max: 1, Window: time.Minute}

	res, _ := l.Allow(context.Background(), "k", policy)
	require.True(t, res.Allowed)

	*clock = start.Add(20*time.Second + 500*time.Millisecond)
	res, _ = l.Allow(context.Background(), "k", policy)
	require.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
}

func TestAllow_RejectedRequestIsNotRecorded(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newClockedLimiter(start)
	policy := Policy{Max: 1, Window: time.Minute}

	res, _ := l.Allow(context.Background(), "k", policy)
	require.True(t, res.Allowed)

	// Hammering while rejected must not push the reset time out.
	for i := 1; i <= 30; i++ {
		*clock = start.Add(time.Duration(i) * time.Second)
		res, _ = l.Allow(context.Background(), "k", policy)
		assert.False(t, res.Allowed)
	}

	*clock = start.Add(61 * time.Second)
	res, _ = l.Allow(context.Background(), "k", policy)
	assert.True(t, res.Allowed)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newClockedLimiter(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	policy := Policy{Max: 1, Window: time.Minute}

	res, _ := l.Allow(context.Background(), "a", policy)
	assert.True(t, res.Allowed)
	res, _ = l.Allow(context.Background(), "a", policy)
	assert.False(t, res.Allowed)

	res, _ = l.Allow(context.Background(), "b", policy)
	assert.True(t, res.Allowed)
}

func TestAllow_ZeroPolicyDisablesLimiting(t *testing.T) {
	l := NewMemoryLimiter()

	for i := 0; i < 100; i++ {
		res, err := l.Allow(context.Background(), "k", Policy{})
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestAllow_ConcurrentRequestsNeverOveradmit(t *testing.T) {
	l := NewMemoryLimiter()
	policy := Policy{Max: 10, Window: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "shared", policy)
			require.NoError(t, err)
			if res.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
}

func TestCleanup_DropsIdleKeys(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l, clock := newClockedLimiter(start)
	policy := Policy{Max: 5, Window: time.Minute}

	_, _ = l.Allow(context.Background(), "idle", policy)
	_, _ = l.Allow(context.Background(), "busy", policy)
	require.Equal(t, 2, l.Len())

	*clock = start.Add(10 * time.Minute)
	_, _ = l.Allow(context.Background(), "busy", policy)

	removed := l.Cleanup(5 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}
