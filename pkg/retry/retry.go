// Package retry runs operations with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig matches the credential-grant policy: five retries, doubling from one second.
var DefaultConfig = Config{
	MaxRetries:  5,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Multiplier:  2.0,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the context ends,
// or MaxRetries retries have failed. The last error is returned.
func Do[T any](ctx context.Context, rc Config, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var permanent *permanentError
		if errors.As(err, &permanent) {
			return zero, permanent.err
		}

		if attempt < rc.MaxRetries {
			wait := Backoff(rc, attempt)
			logger.Debug("Retrying",
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

// Backoff returns the wait before retry number attempt+1.
func Backoff(rc Config, attempt int) time.Duration {
	wait := time.Duration(float64(rc.InitialWait) * math.Pow(rc.Multiplier, float64(attempt)))
	if rc.MaxWait > 0 && wait > rc.MaxWait {
		wait = rc.MaxWait
	}
	return wait
}
