package provider

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/runlace/core/pkg/types"
)

// CompletionError carries the HTTP status (if any) a provider call failed
// with, so the classifier below can decide retryability without string
// matching on error text.
type CompletionError struct {
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string { return e.Err.Error() }
func (e *CompletionError) Unwrap() error { return e.Err }

// isRetryable classifies an error per the retry table: network failures
// and HTTP 408/429/5xx are retryable; authentication failures (401/403),
// other 4xx, and cancellation are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		switch {
		case ce.StatusCode == http.StatusRequestTimeout, ce.StatusCode == http.StatusTooManyRequests:
			return true
		case ce.StatusCode >= 500 && ce.StatusCode < 600:
			return true
		case ce.StatusCode == http.StatusUnauthorized, ce.StatusCode == http.StatusForbidden:
			return false
		case ce.StatusCode >= 400 && ce.StatusCode < 500:
			return false
		}
	}
	return types.KindOf(err) == types.ErrTransient
}

// retryPolicy mirrors the exact backoff schedule: delay(n) =
// min(maxDelay, initial*2^(n-1)) with +-10% jitter, bounded by maxAttempts.
type retryPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		Initial:     1000 * time.Millisecond,
		Max:         30000 * time.Millisecond,
		MaxAttempts: 10,
	}
}

// delayFor returns the base (un-jittered) delay for the nth attempt
// (1-indexed), matching the scenario table: 1->1000ms, 2->2000ms,
// 3->4000ms, ... capped at Max (attempt 20 saturates at 30000ms).
func (p retryPolicy) delayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

func (p retryPolicy) jittered(attempt int, rnd *rand.Rand) time.Duration {
	base := p.delayFor(attempt)
	jitter := 0.1 // +-10%
	factor := 1 - jitter + rnd.Float64()*2*jitter
	return time.Duration(float64(base) * factor)
}

// backoffFor adapts the policy into a cenkalti/backoff BackOff so provider
// call sites can reuse the same retry loop shape the rest of the runtime
// uses (internal/thread), while
// the delay sequence itself matches the policy exactly rather than
// backoff's own randomization.
func (p retryPolicy) backoffFor() backoff.BackOff {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	return backoff.WithMaxRetries(backoffFunc(func() time.Duration {
		attempt++
		return p.jittered(attempt, rnd)
	}), uint64(p.MaxAttempts-1))
}

// backoffFunc adapts a plain delay-producing function into backoff.BackOff.
type backoffFunc func() time.Duration

func (f backoffFunc) NextBackOff() time.Duration { return f() }
func (f backoffFunc) Reset()                     {}

// WithRetry runs op, retrying per defaultRetryPolicy() while isRetryable
// holds and the stream has not already emitted a token (canRetry reports
// false once streaming output has begun, since a partial response must not
// be silently restarted).
func WithRetry(ctx context.Context, canRetry func() bool, op func() error) error {
	policy := defaultRetryPolicy()
	b := backoff.WithContext(policy.backoffFor(), ctx)
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !canRetry() || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
