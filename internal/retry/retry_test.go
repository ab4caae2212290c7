package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{MaxRetries: maxRetries, BaseDelay: time.Millisecond}
}

func TestPolicy_DelayGrowsLinearly(t *testing.T) {
	p := Policy{BaseDelay: time.Second}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.BaseDelay)
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var delays []time.Duration

	p := fastPolicy(3)
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		delays = append(delays, delay)
	}

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NetworkError(errors.New("reset"), "network")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return apperrors.NetworkError(errors.New("reset"), "network")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.True(t, apperrors.Is(err, apperrors.CategoryNetwork))
	assert.Contains(t, err.Error(), "failed after 3 retries")
}

func TestDo_DoesNotRetryConfigurationErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return apperrors.ConfigurationError(nil, "missing key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.Is(err, apperrors.CategoryConfiguration))
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 5, BaseDelay: time.Hour}
	p.OnRetry = func(int, time.Duration, error) { cancel() }

	calls := 0
	err := Do(ctx, p, func(ctx context.Context) error {
		calls++
		return apperrors.NetworkError(nil, "network")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, fastPolicy(3), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", apperrors.NetworkError(nil, "n"), true},
		{"configuration", apperrors.ConfigurationError(nil, "c"), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
