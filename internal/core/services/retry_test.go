package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

// fakeTimer records requested delays and fires immediately.
type fakeTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func TestRetry_SucceedsAfterRateLimits(t *testing.T) {
	timer := newFakeTimer()
	calls := 0

	got, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Retryable:   IsRateLimited,
		Timer:       timer,
	}, func(context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", fmt.Errorf("completion: %w", domain.ErrRateLimited)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, timer.delays)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	timer := newFakeTimer()
	calls := 0

	_, err := Retry(context.Background(), RetryPolicy{
		Name:        "completion",
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		Retryable:   IsRateLimited,
		Timer:       timer,
	}, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrRateLimited
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, 3, calls)
	assert.Len(t, timer.delays, 2)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	timer := newFakeTimer()
	calls := 0
	boom := errors.New("bad request")

	_, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Retryable:   IsRateLimited,
		Timer:       timer,
	}, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, timer.delays)
}

func TestRetry_SingleAttempt(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 1,
		Retryable:   IsRateLimited,
		Timer:       newFakeTimer(),
	}, func(context.Context) (int, error) {
		calls++
		return 0, domain.ErrRateLimited
	})

	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetry_NilPredicateRetriesEverything(t *testing.T) {
	calls := 0

	got, err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		Timer:       newFakeTimer(),
	}, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Retry(ctx, RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Hour,
		Retryable:   IsRateLimited,
	}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, domain.ErrRateLimited
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetry_Notify(t *testing.T) {
	var notified []time.Duration

	_, _ = Retry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		Retryable:   IsRateLimited,
		Timer:       newFakeTimer(),
		Notify: func(_ error, d time.Duration) {
			notified = append(notified, d)
		},
	}, func(context.Context) (int, error) {
		return 0, domain.ErrRateLimited
	})

	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, notified)
}
