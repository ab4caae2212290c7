package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Policy controls how many times an operation is retried and how long to wait
// between attempts. The delay grows linearly: BaseDelay * attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// ShouldRetry decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	ShouldRetry func(err error) bool

	// OnRetry is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns 3 retries with a 1s base delay
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// Delay returns the wait before the given retry attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Do runs fn until it succeeds, returns a non-retryable error, the retry budget
// is spent, or ctx is done. Context errors are returned as-is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !shouldRetry(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			if attempt == 0 {
				return err
			}
			return fmt.Errorf("failed after %d retries: %w", attempt, err)
		}

		delay := p.Delay(attempt + 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is transient. Errors exposing Retryable()
// decide for themselves; network timeouts are retried; everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
