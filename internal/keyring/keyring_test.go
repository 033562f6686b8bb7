package keyring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// fakeClock is a settable clock for cooldown tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNextRotatesRoundRobin(t *testing.T) {
	r := New([]string{"a", "b", "c"}, time.Minute, newFakeClock(), nil)

	var got []string
	for i := 0; i < 6; i++ {
		k, err := r.Next()
		require.NoError(t, err)
		got = append(got, k)
	}
	require.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, got)
}

func TestMarkFailedRemovesKeyFromRotation(t *testing.T) {
	clock := newFakeClock()
	r := New([]string{"a", "b"}, time.Minute, clock, nil)

	r.MarkFailed("a", ingest.ClassQuotaExhausted)
	for i := 0; i < 4; i++ {
		k, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, "b", k)
	}
}

func TestTransientFailureDoesNotTrip(t *testing.T) {
	r := New([]string{"a", "b"}, time.Minute, newFakeClock(), nil)

	r.MarkFailed("a", ingest.ClassTransient)
	r.MarkFailed("a", ingest.ClassMalformedResponse)
	k, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "a", k)
}

func TestAllKeysTripped(t *testing.T) {
	clock := newFakeClock()
	r := New([]string{"a", "b"}, time.Minute, clock, nil)

	r.MarkFailed("a", ingest.ClassQuotaExhausted)
	r.MarkFailed("b", ingest.ClassInvalidCredential)
	_, err := r.Next()
	require.ErrorIs(t, err, ErrNoKeysAvailable)
}

func TestKeyReturnsAfterCooldown(t *testing.T) {
	clock := newFakeClock()
	r := New([]string{"a"}, time.Minute, clock, nil)

	r.MarkFailed("a", ingest.ClassQuotaExhausted)
	_, err := r.Next()
	require.ErrorIs(t, err, ErrNoKeysAvailable)

	clock.Advance(59 * time.Second)
	_, err = r.Next()
	require.ErrorIs(t, err, ErrNoKeysAvailable)

	clock.Advance(2 * time.Second)
	k, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "a", k)
}

func TestEmptyAndBlankKeys(t *testing.T) {
	r := New(nil, 0, newFakeClock(), nil)
	require.Equal(t, 0, r.Len())
	_, err := r.Next()
	require.ErrorIs(t, err, ErrNoKeysAvailable)

	r = New([]string{"", "a", ""}, 0, newFakeClock(), nil)
	require.Equal(t, 1, r.Len())
}
