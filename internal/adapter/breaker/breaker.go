// Package breaker wraps remote collaborators in a circuit breaker so a failing
// service is left alone for a while instead of being hammered by every worker.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/pkg/apperr"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes a Breaker.
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	MinRequests      uint32
	FailureThreshold float64
}

// DefaultConfig returns the settings used for search and archive clients.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		MinRequests:      5,
		FailureThreshold: 0.6,
	}
}

// Breaker counts only transient failures; a rejected query or missing page
// says nothing about the health of the service.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a Breaker.
func New(cfg Config, logger *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperr.IsRetryable(err)
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn through the breaker. A rejected call is a network error so the
// retry policy backs off and the unit is eventually deferred.
func (b *Breaker) Do(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Network(op, ErrOpen)
	}
	return err
}

// State reports the breaker state, for tests and health output.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
