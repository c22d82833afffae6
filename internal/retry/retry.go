package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1000 * time.Millisecond
	DefaultMaxDelay    = 30000 * time.Millisecond
	DefaultMultiplier  = 2.0

	jitterFraction = 0.1
)

// BackoffOptions configures Backoff. Zero values fall back to the defaults
// above; a nil Retryable retries every error.
type BackoffOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Retryable   func(err error, attempt int) bool
}

// Backoff runs op up to MaxAttempts times with exponential delays between
// attempts. The delay before retrying attempt n is
// min(BaseDelay*Multiplier^(n-1), MaxDelay) plus up to 10% random jitter,
// always added, never subtracted. The last error is returned once attempts
// are exhausted or the Retryable predicate rejects the error.
func Backoff(ctx context.Context, op func() error, opts BackoffOptions) error {

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = DefaultMultiplier
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if opts.Retryable != nil && !opts.Retryable(lastErr, attempt) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}
		delay := float64(opts.BaseDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
		if delay > float64(opts.MaxDelay) {
			delay = float64(opts.MaxDelay)
		}
		delay += delay * jitterFraction * rand.Float64()

		if err := sleep(ctx, time.Duration(delay)); err != nil {
			return err
		}
	}
	return lastErr
}

// Fixed runs op up to attempts times waiting the same delay between every
// attempt, re-raising the last error once attempts are exhausted.
func Fixed(ctx context.Context, op func() error, attempts int, delay time.Duration) error {

	if attempts <= 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 1000 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusCoder is satisfied by errors carrying an HTTP status, such as
// api.StatusError.
type statusCoder interface {
	StatusCode() int
}

var networkErrorMarkers = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"unreachable",
	"no such host",
	"Network Error",
}

// IsNetworkError reports whether err looks like a connectivity failure:
// refused/reset connections, timeouts, unreachable hosts.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, marker := range networkErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsServerError reports whether err carries an HTTP status >= 500.
func IsServerError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() >= 500
	}
	return false
}

// IsRateLimited reports whether err carries HTTP status 429.
func IsRateLimited(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode() == 429
	}
	return false
}

// IsRetryable combines the three classifiers above.
func IsRetryable(err error, _ int) bool {
	return IsNetworkError(err) || IsServerError(err) || IsRateLimited(err)
}
