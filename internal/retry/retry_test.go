package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyErr struct{ retry bool }

func (e *flakyErr) Error() string   { return fmt.Sprintf("flaky (retry=%v)", e.retry) }
func (e *flakyErr) Retryable() bool { return e.retry }

var fast = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fast, func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &flakyErr{retry: true}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, &flakyErr{retry: false}
	})

	require.Error(t, err)
	var fe *flakyErr
	assert.True(t, errors.As(err, &fe), "permanent error should be returned unwrapped: %v", err)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, func(ctx context.Context) (int, error) {
		calls++
		return 0, &flakyErr{retry: true}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_AppliesAttemptTimeout(t *testing.T) {
	p := Policy{MaxAttempts: 1, Timeout: 10 * time.Millisecond}

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &flakyErr{retry: true})))
	assert.False(t, IsRetryable(errors.New("plain")))
}
