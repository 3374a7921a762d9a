package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retry loop around store queries. Transient
// failures (timeouts, dropped connections) are retried with exponential
// backoff; a still-failing query is surfaced to the caller and aborts the
// current level.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	QueryTimeout time.Duration
}

// DefaultRetryPolicy is 3 attempts, 200ms initial backoff, 10s per query.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, QueryTimeout: 10 * time.Second}
}

// withRetry runs fn under the per-attempt query timeout, retrying transient
// failures. Context cancellation is never retried.
func withRetry(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	delay := policy.InitialDelay
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.QueryTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.QueryTimeout)
		}
		err = fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}
		if attempt < policy.MaxAttempts {
			logrus.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
			}).Warnf("store query failed, retrying in %s: %v", delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}
	return err
}
