package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ResilienceConfig configures retry and backoff behavior.
type ResilienceConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultResilienceConfig provides sensible defaults
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retrier re-runs an operation with exponential backoff while ShouldRetry
// accepts the error.
type Retrier struct {
	config      ResilienceConfig
	ShouldRetry func(error) bool
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetrier(config ResilienceConfig, shouldRetry func(error) bool) *Retrier {
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}
	return &Retrier{
		config:      config,
		ShouldRetry: shouldRetry,
		logger:      slog.Default().With("component", "retrier"),
		sleep:       sleepContext,
	}
}

// WithoutDelay disables backoff sleeps. Tests use it to keep retries instant.
func (r *Retrier) WithoutDelay() *Retrier {
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

// ExecuteWithRetry runs operation up to MaxRetries+1 times.
func (r *Retrier) ExecuteWithRetry(ctx context.Context, operationName string, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Warn("retrying operation",
				"operation", operationName,
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr)

			if err := r.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", "operation", operationName, "attempt", attempt)
			}
			return nil
		}

		lastErr = err

		if !r.ShouldRetry(err) {
			return err
		}
	}

	r.logger.Error("retries exhausted",
		"operation", operationName,
		"max_retries", r.config.MaxRetries,
		"error", lastErr)

	return fmt.Errorf("%s failed after %d retries: %w", operationName, r.config.MaxRetries, lastErr)
}

func (r *Retrier) calculateDelay(attempt int) time.Duration {
	multiplier := r.config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(r.config.BaseDelay) * math.Pow(multiplier, float64(attempt-1))

	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
