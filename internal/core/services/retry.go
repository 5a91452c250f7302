package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/ragkb/internal/core/domain"
	"github.com/custodia-labs/ragkb/internal/logger"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// Name labels log lines.
	Name string

	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry. Each retry doubles it.
	BaseDelay time.Duration

	// Retryable reports whether an error may be retried.
	// Nil retries every error.
	Retryable func(error) bool

	// Timer drives the waits. Nil uses a real timer.
	Timer backoff.Timer

	// Notify is called before each wait.
	Notify func(err error, delay time.Duration)
}

// IsRateLimited is the retry predicate for throttled calls.
func IsRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}

// Retry calls op until it succeeds, returns a non-retryable error, the
// context ends, or MaxAttempts calls have failed. Waits grow as
// BaseDelay, 2*BaseDelay, 4*BaseDelay, ... with no jitter.
//
// When attempts run out the error matches both domain.ErrRetriesExhausted
// and the last error returned by op.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.RandomizationFactor = 0
	eb.Multiplier = 2
	eb.MaxInterval = time.Duration(math.MaxInt64)
	eb.MaxElapsedTime = 0
	eb.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	var (
		result T
		calls  int
	)
	operation := func() error {
		calls++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		logger.Debug("%s: attempt %d/%d failed (%v), retrying in %s", p.label(), calls, attempts, err, delay)
		if p.Notify != nil {
			p.Notify(err, delay)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, p.Timer)
	if err == nil {
		return result, nil
	}

	var zero T
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return zero, err
	}
	if p.Retryable != nil && !p.Retryable(err) {
		return zero, err
	}

	logger.Warn("%s: giving up after %d attempts: %v", p.label(), calls, err)
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", p.label(), domain.ErrRetriesExhausted, calls, err)
}

func (p RetryPolicy) label() string {
	if p.Name == "" {
		return "retry"
	}
	return p.Name
}
