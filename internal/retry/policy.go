// Package retry holds the retry policy handed to each pipeline stage.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/user/legalcode-service/internal/clock"
	"github.com/user/legalcode-service/pkg/apperr"
)

const (
	defaultBaseDelay   = 5 * time.Second
	defaultMaxDelay    = 5 * time.Minute
	defaultMaxAttempts = 5
	defaultJitter      = 0.2 // +/- 20%
)

// Policy is an exponential backoff with jitter. Only retryable errors
// (see apperr.IsRetryable) are attempted again.
type Policy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Multiplier:  2,
		Jitter:      defaultJitter,
	}
}

// Delay returns the wait before the given retry (attempt 1 is the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Result reports how a Do call went.
type Result struct {
	Attempts int
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempts
// run out. Exhaustion yields an error matching apperr.ErrDeferred that still
// wraps the last failure.
func (p Policy) Do(ctx context.Context, clk clock.Clock, fn func(ctx context.Context) error) (Result, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	var res Result
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		res.Attempts = attempt
		lastErr = fn(ctx)
		if lastErr == nil {
			return res, nil
		}
		if !apperr.IsRetryable(lastErr) {
			return res, lastErr
		}
		if attempt == max {
			break
		}
		if err := clk.Sleep(ctx, p.Delay(attempt)); err != nil {
			return res, fmt.Errorf("%w: %w", apperr.ErrDeferred, lastErr)
		}
	}
	return res, fmt.Errorf("%w: %w", apperr.ErrDeferred, lastErr)
}
