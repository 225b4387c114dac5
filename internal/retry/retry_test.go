package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	result, err := Run(context.Background(), DefaultPolicy(), func(error) bool { return true },
		func() (int, error) {
			calls++
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterRatio: 0}
	calls := 0
	result, err := Run(context.Background(), policy, func(error) bool { return true },
		func() (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRun_ExhaustsAttempts(t *testing.T) {
	policy := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterRatio: 0}
	calls := 0
	sentinel := errors.New("boom")

	_, err := Run(context.Background(), policy, func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, sentinel
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 2, calls)
}

func TestRun_StopsEarlyWhenNotRetryable(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterRatio: 0}
	calls := 0

	_, err := Run(context.Background(), policy, func(error) bool { return false },
		func() (int, error) {
			calls++
			return 0, errors.New("permanent")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayForAttempt_CapsAtMaxDelay(t *testing.T) {
	policy := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 2 * time.Second, JitterRatio: 0}
	d := policy.DelayForAttempt(10)
	assert.LessOrEqual(t, d, 2*time.Second)
}

func TestRun_ContextCancellationStopsRetries(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, JitterRatio: 0}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Run(ctx, policy, func(error) bool { return true },
		func() (int, error) {
			calls++
			return 0, errors.New("transient")
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 1, calls)
}
