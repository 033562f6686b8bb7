package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

func testExecutor(maxAttempts int) *Executor {
	return New(Config{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}, nil)
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	out, err := Do(context.Background(), e, "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	require.NoError(t, err)
	require.Equal(t, "done", out)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	e := testExecutor(3)
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), e, "list page 4", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "list page 4")
	require.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	e := testExecutor(5)
	calls := 0
	_, err := Do(context.Background(), e, "op", func(context.Context) (int, error) {
		calls++
		return 0, ingest.Permanentf("token missing")
	})
	require.Error(t, err)
	require.True(t, ingest.IsPermanent(err))
	require.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	e := New(Config{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, e, "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	e := New(Config{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 500 * time.Millisecond}, nil)
	require.Equal(t, 100*time.Millisecond, e.Backoff(0))
	require.Equal(t, 200*time.Millisecond, e.Backoff(1))
	require.Equal(t, 400*time.Millisecond, e.Backoff(2))
	require.Equal(t, 500*time.Millisecond, e.Backoff(3))
	require.Equal(t, 500*time.Millisecond, e.Backoff(30))
}

func TestWithMaxAttempts(t *testing.T) {
	e := testExecutor(3)
	require.Equal(t, 1, e.WithMaxAttempts(1).MaxAttempts())
	require.Equal(t, 3, e.WithMaxAttempts(0).MaxAttempts())
	require.Equal(t, 3, e.MaxAttempts())
}
