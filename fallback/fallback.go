// Package fallback implements cloud-first provider selection with graceful
// degradation: try the preferred provider, and on any failure serve the
// request from the secondary.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options tunes a Selector. Zero values get defaults.
type Options struct {
	// Timeout is the per-attempt deadline applied to each provider call.
	Timeout time.Duration
	// Retry bounds the retry loop around the primary. The secondary gets a
	// single attempt; if it is down too there is nothing left to protect.
	Retry RetryConfig
	// BreakerThreshold and BreakerCooldown configure the primary's circuit
	// breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// ForceSecondary skips the primary entirely (offline mode).
	ForceSecondary bool
	// OnFallback is invoked whenever the secondary serves the request.
	OnFallback func()
	Logger     *zap.Logger
}

// Selector wraps a primary and secondary call for one pipeline stage. The
// breaker state persists across invocations, so one Selector is created per
// stage and reused.
type Selector[T any] struct {
	stage          string
	primaryName    string
	secondaryName  string
	timeout        time.Duration
	retry          RetryConfig
	breaker        *Breaker
	forceSecondary bool
	onFallback     func()
	logger         *zap.Logger
}

// NewSelector builds a selector for one stage. Provider names are only used
// for logging; the stage adapters attach the real calls per invocation.
func NewSelector[T any](stage, primaryName, secondaryName string, opts Options) *Selector[T] {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector[T]{
		stage:          stage,
		primaryName:    primaryName,
		secondaryName:  secondaryName,
		timeout:        opts.Timeout,
		retry:          opts.Retry,
		breaker:        NewBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		forceSecondary: opts.ForceSecondary,
		onFallback:     opts.OnFallback,
		logger:         logger,
	}
}

// Do runs the selection: primary with timeout, retry, and breaker; secondary
// on any primary failure. It returns the value, the name of the provider that
// served it, and an error only when both sides failed.
func (s *Selector[T]) Do(ctx context.Context, primary, secondary func(context.Context) (T, error)) (T, string, error) {
	var zero T

	primaryErr := ErrBreakerOpen
	if !s.forceSecondary && primary != nil {
		if s.breaker.Allow() {
			var value T
			primaryErr = WithRetry(ctx, s.retry, func() error {
				attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
				defer cancel()
				var err error
				value, err = primary(attemptCtx)
				return err
			})
			if primaryErr == nil {
				s.breaker.Success()
				return value, s.primaryName, nil
			}
			s.breaker.Failure()
		} else {
			s.logger.Debug("skipping primary, breaker open",
				zap.String("stage", s.stage),
				zap.String("provider", s.primaryName))
		}

		// The caller going away is not a provider failure; don't burn the
		// secondary on it.
		if ctx.Err() != nil {
			return zero, "", ctx.Err()
		}

		s.logger.Warn("primary provider failed, falling back",
			zap.String("stage", s.stage),
			zap.String("primary", s.primaryName),
			zap.String("secondary", s.secondaryName),
			zap.Error(primaryErr))
		if s.onFallback != nil {
			s.onFallback()
		}
	}

	if secondary == nil {
		return zero, "", fmt.Errorf("%s: primary failed and no secondary configured: %w", s.stage, primaryErr)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, secondaryErr := secondary(attemptCtx)
	if secondaryErr != nil {
		if s.forceSecondary {
			return zero, "", fmt.Errorf("%s: %s failed: %w", s.stage, s.secondaryName, secondaryErr)
		}
		return zero, "", fmt.Errorf("%s: both providers failed: %w", s.stage, errors.Join(primaryErr, secondaryErr))
	}
	return value, s.secondaryName, nil
}

// Breaker exposes the primary's breaker for observability.
func (s *Selector[T]) Breaker() *Breaker { return s.breaker }
