// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wallet-watch/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for any single delay
	Multiplier   float64

	// Retryable decides whether err is worth another attempt. nil retries everything.
	Retryable func(err error) bool
}

// DefaultConfig returns 3 attempts at 500ms, 1s, capped at 5s
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

// Func is a function that can be retried. attempt starts at 1.
type Func func(ctx context.Context, attempt int) error

// Do executes fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The returned error is the last one fn produced,
// unwrapped, so callers can still match it with errors.Is.
func Do(ctx context.Context, cfg Config, fn Func) (Result, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()
	res := Result{}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			res.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts": attempt,
					"duration": res.TotalDuration.String(),
				}).Debug("Operation succeeded after retry")
			}
			return res, nil
		}
		res.LastError = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			break
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Backoff(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Debug("Operation failed, backing off")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			res.TotalDuration = time.Since(start)
			return res, fmt.Errorf("retry aborted after %d attempts: %w", attempt, err)
		}
	}

	res.TotalDuration = time.Since(start)
	return res, res.LastError
}

// Backoff returns the delay after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func Backoff(cfg Config, attempt int) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
