// Package retry runs calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// Policy controls how failed calls are retried with exponential backoff.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// RetryIf decides whether an error is worth another attempt. Nil means
	// Retryable.
	RetryIf func(error) bool
}

// Default returns a Policy with sensible defaults:
// 3 attempts, 1s initial delay, 2x multiplier, 30s max delay.
func Default() *Policy {
	return &Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// Once returns a Policy that makes one retry after delay. Every error except
// cancellation earns the retry.
func Once(delay time.Duration) *Policy {
	return &Policy{
		MaxAttempts:  2,
		InitialDelay: delay,
		Multiplier:   1.0,
		MaxDelay:     delay,
		RetryIf:      NotCanceled,
	}
}

// NotCanceled retries anything but context cancellation.
func NotCanceled(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// ShouldRetry returns true if the error is retryable and the attempt count
// has not exceeded MaxAttempts.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxAttempts {
		return false
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return Retryable(err)
}

type temporary interface {
	Temporary() bool
}

// Retryable classifies errors as retryable or permanent. Errors that report
// Temporary() are trusted; cancellation is permanent; otherwise the message
// decides. Transient errors (connection, timeout) are retryable,
// auth/validation errors are not, and unknown errors default to retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	msg := strings.ToLower(err.Error())

	// Transient / retryable errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "temporary failure") {
		return true
	}

	// Permanent / non-retryable errors
	if strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "forbidden") {
		return false
	}

	// Default: retryable
	return true
}

// NextDelay returns the backoff delay for the given attempt number (1-indexed).
// The delay is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (p *Policy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs fn up to MaxAttempts times, sleeping between retries with
// exponential backoff. It returns nil on success, the last error if all
// attempts fail or the error is non-retryable, or ctx's error if ctx ends
// while waiting.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		if attempt < p.MaxAttempts {
			timer := time.NewTimer(p.NextDelay(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}
