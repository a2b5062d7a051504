package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryPolicy defines retry behavior with exponential backoff and jitter,
// used for daemon dials and the ready handshake.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 = no jitter, 1.0 = full jitter
}

// RetryError wraps the original error with retry context.
type RetryError struct {
	OriginalError   error
	Attempts        int
	CumulativeDelay time.Duration
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("max retries (%d) exceeded after %v: %v",
		e.Attempts, e.CumulativeDelay, e.OriginalError)
}

func (e *RetryError) Unwrap() error {
	return e.OriginalError
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 1.0,
	}
}

// CalculateDelay computes the delay for a given attempt using exponential
// backoff with full jitter.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	exponent := float64(attempt - 1)
	baseExp := float64(p.BaseDelay) * math.Pow(p.Multiplier, exponent)
	capped := math.Min(baseExp, float64(p.MaxDelay))

	jitter := math.Max(0, math.Min(1, p.JitterFactor))
	jitterBlend := 1.0 - jitter + rand.Float64()*jitter
	return time.Duration(capped * jitterBlend)
}

// isRetriable reports whether a daemon error is worth another attempt.
// Context errors never are; connection-level failures generally are.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection refused", "connection reset", "broken pipe", "eof", "timeout", "not ready"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// retry executes fn with retry logic according to the policy.
func retry[T any](ctx context.Context, policy *RetryPolicy, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	var cumulativeDelay time.Duration

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetriable(err) {
			return zero, err
		}
		if attempt >= policy.MaxAttempts {
			break
		}

		delay := policy.CalculateDelay(attempt)
		cumulativeDelay += delay

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, &RetryError{
		OriginalError:   lastErr,
		Attempts:        policy.MaxAttempts,
		CumulativeDelay: cumulativeDelay,
	}
}
