package jcode

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential backoff applied by WithRetry.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first, 0 = DefaultRetryPolicy value
	BaseDelay   time.Duration // initial backoff interval
	MaxDelay    time.Duration // cap on any single backoff interval
}

// DefaultRetryPolicy matches the provider retry bound: 3 attempts, base
// 500ms, capped at 8s.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// retryableError is implemented by errors that know whether they should be
// retried. Provider implementations return errors satisfying this interface
// (or a plain error, treated as non-retryable) from Stream.
type retryableError interface {
	Retryable() bool
}

// RetryableError wraps err so that WithRetry treats it as transient.
func RetryableError(err error) error { return retryableErr{err} }

type retryableErr struct{ err error }

func (r retryableErr) Error() string  { return r.err.Error() }
func (r retryableErr) Unwrap() error  { return r.err }
func (r retryableErr) Retryable() bool { return true }

// WithRetry wraps p so that Stream retries transient failures with
// exponential backoff before the stream has emitted any events. Once a
// provider stream has started delivering events, a failure is surfaced as
// a stream-level error instead of silently retried, since retrying would
// otherwise replay already-emitted deltas to subscribers.
func WithRetry(p Provider, policy RetryPolicy) Provider {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	return &retryingProvider{inner: p, policy: policy}
}

type retryingProvider struct {
	inner  Provider
	policy RetryPolicy
}

func (r *retryingProvider) Name() string          { return r.inner.Name() }
func (r *retryingProvider) ListModels() []string  { return r.inner.ListModels() }

func (r *retryingProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.MaxInterval = r.policy.MaxDelay
	b.MaxElapsedTime = 0 // bounded by attempt count below, not elapsed wall time
	bo := backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	var stream Stream
	err := backoff.Retry(func() error {
		s, err := r.inner.Stream(ctx, req)
		if err == nil {
			stream = s
			return nil
		}
		var re retryableError
		if errors.As(err, &re) && re.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
