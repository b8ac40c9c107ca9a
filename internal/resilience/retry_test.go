package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetry_SucceedsAfterRetryable(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastBackoff(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Retryable(errors.New("busy"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastBackoff(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("404 not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retried []int
	b := fastBackoff(3)
	b.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Run(context.Background(), b, func(context.Context) error {
		calls++
		return Retryable(errors.New("busy"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	b := Backoff{Attempts: 10, Initial: time.Hour, Max: time.Hour, Multiplier: 1}

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, b, func(context.Context) error {
			calls++
			return Retryable(errors.New("busy"), 503)
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop on cancellation")
	}
}

func TestRetry_CustomRetryable(t *testing.T) {
	calls := 0
	b := fastBackoff(4)
	b.Retryable = func(error) bool { return true }
	_ = Run(context.Background(), b, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 4, calls)
}

func TestWithRetries(t *testing.T) {
	assert.Equal(t, 4, WithRetries(3).Attempts)
	assert.Equal(t, 1, WithRetries(0).Attempts)
	assert.Equal(t, 1, WithRetries(-2).Attempts)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 350*time.Millisecond, b.Delay(2), "capped at max")

	b.Jitter = 0.5
	for i := 0; i < 50; i++ {
		d := b.Delay(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"marked", Retryable(errors.New("x"), 503), true},
		{"wrapped mark", fmt.Errorf("fetch: %w", Retryable(errors.New("x"), 429)), true},
		{"net timeout", timeoutErr{}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"message", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 425, 429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 403, 404} {
		assert.False(t, RetryableStatus(code), code)
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Retryable(inner, 502)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "inner", err.Error())
	assert.Equal(t, 502, err.StatusCode)
}
