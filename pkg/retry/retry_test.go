package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestBatchRetrier_RetriesOnce(t *testing.T) {
	calls := 0
	attempts, err := BatchRetrier(0).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestBatchRetrier_SecondAttemptSucceeds(t *testing.T) {
	var retried []int
	calls := 0
	attempts, err := BatchRetrier(time.Millisecond, WithOnRetry(func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
		assert.Equal(t, time.Millisecond, delay)
	})).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{1}, retried)
}

func TestRetrier_PermanentStops(t *testing.T) {
	calls := 0
	attempts, err := New(WithMaxAttempts(5), WithInitialDelay(0)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestRetrier_RetryIf(t *testing.T) {
	calls := 0
	_, err := New(WithMaxAttempts(4), WithInitialDelay(0), WithRetryIf(func(error) bool { return false })).
		Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errFlaky
		})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestRetrier_BackoffDoublesUpToMax(t *testing.T) {
	var delays []time.Duration
	r := New(
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(3*time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }),
	)

	attempts, err := r.Do(context.Background(), func(ctx context.Context) error { return errFlaky })
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond, 3 * time.Millisecond}, delays)
}

func TestRetrier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := New().Do(ctx, func(ctx context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}
