package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault-sub002/pkg/testutil"
)

func TestUntilReturnsImmediatelyOnSuccess(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 5*time.Second)
	defer cancel()

	cfg := Config{Timeout: 2 * time.Second, MinInterval: 200 * time.Millisecond}

	start := time.Now()
	v, err := Until(ctx, cfg,
		func(context.Context) (int, error) { return 42, nil },
		func(v int) bool { return v == 42 },
	)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	// Success must return without a trailing sleep.
	assert.Less(t, elapsed, cfg.MinInterval)
}

func TestUntilSucceedsOnThirdCheck(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	cfg := Config{
		Timeout:     5 * time.Second,
		MinInterval: 40 * time.Millisecond,
		MaxInterval: 400 * time.Millisecond,
		Multiplier:  1.5,
	}

	calls := 0
	start := time.Now()
	v, err := Until(ctx, cfg,
		func(context.Context) (int, error) {
			calls++
			return calls, nil
		},
		func(v int) bool { return v >= 3 },
	)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, v)
	// Two sleeps happened: min and min*multiplier.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, cfg.Timeout)
}

func TestUntilToleratesCheckErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	cfg := Config{Timeout: 5 * time.Second, MinInterval: 10 * time.Millisecond}

	calls := 0
	v, err := Until(ctx, cfg,
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("not found yet")
			}
			return "ready", nil
		},
		func(v string) bool { return v == "ready" },
	)

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, 3, calls)
}

func TestUntilTimeoutCarriesLastValue(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	cfg := Config{Timeout: 200 * time.Millisecond, MinInterval: 20 * time.Millisecond}

	v, err := Until(ctx, cfg,
		func(context.Context) (string, error) { return "still-old", nil },
		func(string) bool { return false },
	)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "still-old", v)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "still-old", te.LastValue)
	assert.Contains(t, te.Error(), "still-old")
}

func TestUntilTimeoutCarriesLastCheckError(t *testing.T) {
	t.Parallel()

	ctx, cancel := testutil.GetTestContext(t, 10*time.Second)
	defer cancel()

	cfg := Config{Timeout: 150 * time.Millisecond, MinInterval: 20 * time.Millisecond}

	checkErr := errors.New("file not found yet")
	_, err := Until(ctx, cfg,
		func(context.Context) (int, error) { return 0, checkErr },
		func(int) bool { return true },
	)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, checkErr)
	assert.Contains(t, err.Error(), "file not found yet")
}

// The interval sequence must grow by the multiplier from the minimum and be
// clamped at the maximum, never decreasing on the way up.
func TestBackoffIntervalSequence(t *testing.T) {
	t.Parallel()

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(500*time.Millisecond),
		backoff.WithMultiplier(1.5),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	intervals := make([]time.Duration, 0, 12)
	for i := 0; i < 12; i++ {
		next := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, next)
		intervals = append(intervals, next)
	}

	assert.Equal(t, 50*time.Millisecond, intervals[0])
	assert.Equal(t, 75*time.Millisecond, intervals[1])
	assert.Equal(t, 112500*time.Microsecond, intervals[2])

	for i := 1; i < len(intervals); i++ {
		assert.GreaterOrEqual(t, intervals[i], intervals[i-1], "interval sequence must be non-decreasing")
		assert.LessOrEqual(t, intervals[i], 500*time.Millisecond, "interval must never exceed the maximum")
	}
	assert.Equal(t, 500*time.Millisecond, intervals[len(intervals)-1])
}

func TestUntilHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{Timeout: 10 * time.Second, MinInterval: 20 * time.Millisecond}

	go func() {
		time.Sleep(60 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := UntilTrue(ctx, cfg, func(context.Context) (bool, error) { return false, nil })
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 2*time.Second)
}
