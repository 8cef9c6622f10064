package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		ctx := context.Background()
		callCount := 0
		fn := func() (string, error) {
			callCount++
			if callCount < 2 {
				return "", newAPIError(http.StatusServiceUnavailable, "warming up")
			}
			return "success", nil
		}

		result, err := retryWithBackoff(ctx, fastRetry(), fn)
		require.NoError(t, err)
		assert.Equal(t, "success", result)
		assert.Equal(t, 2, callCount)
	})

	t.Run("exhausts attempts on persistent transient failure", func(t *testing.T) {
		ctx := context.Background()
		callCount := 0
		fn := func() (int, error) {
			callCount++
			return 0, newAPIError(http.StatusTooManyRequests, "slow down")
		}

		_, err := retryWithBackoff(ctx, fastRetry(), fn)
		require.Error(t, err)
		assert.Equal(t, 3, callCount)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		ctx := context.Background()
		callCount := 0
		fn := func() (int, error) {
			callCount++
			return 0, newAPIError(http.StatusBadRequest, "bad input")
		}

		_, err := retryWithBackoff(ctx, fastRetry(), fn)
		require.Error(t, err)
		assert.Equal(t, 1, callCount)
		assert.ErrorIs(t, err, ErrRequestRejected)
	})

	t.Run("transport failure is retried", func(t *testing.T) {
		ctx := context.Background()
		callCount := 0
		fn := func() (int, error) {
			callCount++
			return 0, fmt.Errorf("api call: %w", &url.Error{Op: "Post", URL: "http://localhost:1", Err: errors.New("connection refused")})
		}

		_, err := retryWithBackoff(ctx, fastRetry(), fn)
		require.Error(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("context cancellation stops retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		callCount := 0
		fn := func() (int, error) {
			callCount++
			cancel()
			return 0, newAPIError(http.StatusInternalServerError, "boom")
		}

		_, err := retryWithBackoff(ctx, fastRetry(), fn)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, callCount)
	})

	t.Run("backoff delay grows", func(t *testing.T) {
		ctx := context.Background()
		config := RetryConfig{
			MaxRetries: 3,
			BaseDelay:  10 * time.Millisecond,
			MaxDelay:   100 * time.Millisecond,
			Multiplier: 2.0,
		}

		start := time.Now()
		fn := func() (int, error) {
			return 0, newAPIError(http.StatusInternalServerError, "always fails")
		}

		_, err := retryWithBackoff(ctx, config, fn)
		elapsed := time.Since(start)

		require.Error(t, err)
		// Jitter keeps each delay in [d/2, d], so two waits of 10ms and
		// 20ms cost at least 15ms.
		assert.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", newAPIError(http.StatusTooManyRequests, ""), true},
		{"server error", newAPIError(http.StatusInternalServerError, ""), true},
		{"bad request", newAPIError(http.StatusBadRequest, ""), false},
		{"unauthorized", newAPIError(http.StatusUnauthorized, ""), false},
		{"wrapped api error", fmt.Errorf("call: %w", newAPIError(http.StatusBadGateway, "")), true},
		{"malformed response", fmt.Errorf("%w: garbage", ErrMalformedResponse), false},
		{"empty response", fmt.Errorf("%w: empty body", ErrEmptyResponse), false},
		{"transport error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, true},
		{"plain error", errors.New("marshal request: boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithJitter(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		j := withJitter(d)
		assert.GreaterOrEqual(t, j, d/2)
		assert.LessOrEqual(t, j, d)
	}
}
