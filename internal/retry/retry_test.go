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

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func (e *statusError) StatusCode() int {
	return e.code
}

func TestBackoffDelaysAndCallCount(t *testing.T) {

	calls := 0
	var gaps []time.Duration
	last := time.Now()

	err := Backoff(context.Background(), func() error {
		now := time.Now()
		if calls > 0 {
			gaps = append(gaps, now.Sub(last))
		}
		last = now
		calls++
		if calls < 3 {
			return &statusError{code: 503}
		}
		return nil
	}, BackoffOptions{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2,
		Retryable:   IsRetryable,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, gaps, 2)
	// 100ms then 200ms, each with up to 10% added jitter
	assert.GreaterOrEqual(t, gaps[0], 100*time.Millisecond)
	assert.Less(t, gaps[0], 150*time.Millisecond)
	assert.GreaterOrEqual(t, gaps[1], 200*time.Millisecond)
	assert.Less(t, gaps[1], 280*time.Millisecond)
}

func TestBackoffExhaustsAttempts(t *testing.T) {

	calls := 0
	wantErr := &statusError{code: 500}

	err := Backoff(context.Background(), func() error {
		calls++
		return wantErr
	}, BackoffOptions{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: IsRetryable})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestBackoffStopsOnNonRetryable(t *testing.T) {

	calls := 0
	err := Backoff(context.Background(), func() error {
		calls++
		return &statusError{code: 404}
	}, BackoffOptions{MaxAttempts: 5, BaseDelay: time.Millisecond, Retryable: IsRetryable})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRespectsContext(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Backoff(ctx, func() error {
		calls++
		return errors.New("connection refused")
	}, BackoffOptions{MaxAttempts: 5, BaseDelay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestFixed(t *testing.T) {

	calls := 0
	start := time.Now()

	err := Fixed(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, 3, 10*time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFixedExhausts(t *testing.T) {

	calls := 0
	err := Fixed(context.Background(), func() error {
		calls++
		return errors.New("boom")
	}, 2, time.Millisecond)

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestClassifiers(t *testing.T) {

	testCases := []struct {
		name        string
		err         error
		network     bool
		server      bool
		rateLimited bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:5000: connection refused"), true, false, false},
		{"reset", errors.New("read: connection reset by peer"), true, false, false},
		{"timeout", errors.New("i/o timeout"), true, false, false},
		{"unreachable", errors.New("network is unreachable"), true, false, false},
		{"axios style", errors.New("Network Error"), true, false, false},
		{"internal error", &statusError{code: 500}, false, true, false},
		{"bad gateway", &statusError{code: 502}, false, true, false},
		{"throttled", &statusError{code: 429}, false, false, true},
		{"not found", &statusError{code: 404}, false, false, false},
		{"plain", errors.New("boom"), false, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.network, IsNetworkError(tc.err))
			assert.Equal(t, tc.server, IsServerError(tc.err))
			assert.Equal(t, tc.rateLimited, IsRateLimited(tc.err))
			assert.Equal(t, tc.network || tc.server || tc.rateLimited, IsRetryable(tc.err, 1))
		})
	}
}
