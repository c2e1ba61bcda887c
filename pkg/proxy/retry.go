package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pncp-proxy/pkg/client"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_retries_total",
		Help: "Total number of upstream retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pncp_retry_backoff_seconds",
		Help:    "Backoff duration before upstream retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_retry_exhausted_total",
		Help: "Total number of times upstream retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrRetryExhausted is wrapped around the last failure when every attempt failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 1
	}
	if c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		c.InitialBackoff = c.MaxBackoff
	}
	return c
}

// fetchFunc performs one upstream attempt.
type fetchFunc func(ctx context.Context) client.Result

// retryWithBackoff runs fn until it succeeds, returns a final result, or the
// attempts run out. Only timeouts and transport errors are retried.
// It returns the last result and the number of attempts made.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn fetchFunc) (client.Result, int, error) {
	cfg = cfg.normalized()

	var result client.Result
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result = fn(ctx)

		if result.OK() {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Upstream request succeeded after retry")
			}
			return result, attempt, nil
		}

		if !result.Retryable() {
			return result, attempt, result.Err()
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		errorClass := string(result.Kind)
		retriesTotal.WithLabelValues(errorClass).Inc()

		// Add jitter (±20% randomness)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(errorClass).Observe(wait.Seconds())

		logger.Warn().
			Str("error_class", errorClass).
			Str("reason", result.Reason).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying upstream request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, attempt, fmt.Errorf("retry interrupted: %w", errors.Join(ctx.Err(), result.Err()))
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	if cfg.MaxAttempts == 1 {
		return result, 1, result.Err()
	}

	retryExhaustedTotal.WithLabelValues(string(result.Kind)).Inc()
	logger.Error().
		Str("error_class", string(result.Kind)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Upstream retry attempts exhausted")

	return result, cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, result.Err())
}
