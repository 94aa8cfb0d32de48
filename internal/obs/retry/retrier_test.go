package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpoJitter_NextCapsAtMax(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))
	assert.Equal(t, 100*time.Millisecond, b.Next(-1))

	j := ExpoJitter{Base: 100 * time.Millisecond, Jitter: 0.5}
	for range 20 {
		d := j.Next(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls, seen := 0, 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, Policy{Name: "test_ok", Attempts: 5, OnAttempt: func(int, error) { seen++ }})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, seen)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	var exhausted error
	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, Policy{
		Name:      "test_fatal",
		Attempts:  5,
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
		OnExhaust: func(err error) { exhausted = err },
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, exhausted, fatal)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return errors.New("still down")
	}, Policy{Name: "test_exhaust", Attempts: 3})

	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
}

func TestDo_CanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("down")
	}, Policy{Name: "test_cancel", Attempts: 3, Backoff: ExpoJitter{Base: time.Hour}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultEmailPolicy_SkipsContextErrors(t *testing.T) {
	p := DefaultEmailPolicy(nil)
	assert.False(t, p.Retryable(context.DeadlineExceeded))
	assert.False(t, p.Retryable(context.Canceled))
	assert.True(t, p.Retryable(errors.New("429")))
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	bad := errors.New("mailbox unavailable")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(bad)
	}, Policy{Name: "test_permanent", Attempts: 5})

	assert.ErrorIs(t, err, bad)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(bad))
}
