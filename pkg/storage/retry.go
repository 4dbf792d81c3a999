package storage

import (
	"context"
	"time"

	"github.com/nounverb/nvdb/pkg/nverrors"
)

// RetryPolicy bounds the exponential backoff used for TransientStorage
// failures (spec §4.A). It has no direct teacher analogue — the teacher
// never retries SQLite errors.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is a conservative bounded backoff: up to 5 attempts,
// doubling from 20ms, capped at 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: time.Second}
}

// WithRetry runs fn, retrying on errors tagged KindTransientStorage up to
// policy.MaxAttempts, backing off exponentially. Fatal and non-nverrors
// errors propagate immediately.
func WithRetry(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if nverrors.KindOf(lastErr) != nverrors.KindTransientStorage {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nverrors.New(op, nverrors.KindTimeout, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return nverrors.New(op, nverrors.KindFatalStorage, lastErr)
}
