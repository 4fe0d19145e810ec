package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/testutil"
)

func fastPolicy(attempts int) Policy {
	return Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: attempts}
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(errors.New("dial tcp 10.0.0.2:8989: connection refused")))
	assert.True(t, Retryable(errors.New("lookup sonarr: no such host")))
	assert.False(t, Retryable(errors.New("sonarr returned status 401")))
	assert.False(t, Retryable(nil))
}

func TestWithRetryRecoversFromConnectivityErrors(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "sync", fastPolicy(5), testutil.NopLogger(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	wrong := errors.New("api key rejected")
	err := WithRetry(context.Background(), "sync", fastPolicy(5), testutil.NopLogger(), func(context.Context) error {
		calls++
		return wrong
	})
	require.ErrorIs(t, err, wrong)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsPolicy(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), "sync", fastPolicy(3), testutil.NopLogger(), func(context.Context) error {
		calls++
		return errors.New("no route to host")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, "sync", Policy{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 5},
		testutil.NopLogger(), func(context.Context) error {
			return errors.New("connection refused")
		})
	require.ErrorIs(t, err, context.Canceled)
}
