// Package circuitbreaker wraps github.com/sony/gobreaker/v2 with the
// defaults this codebase standardizes on: trip after five consecutive
// failures and half-open after 30s. A state-change hook is optional; the
// defaults set none.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config mirrors gobreaker.Settings with a narrower surface: just the
// knobs callers actually vary.
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	FailureThresh uint32
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns the standard breaker settings for name: allow 1
// trial request while half-open, reset failure counts every 60s while
// closed, trip for 30s once 5 consecutive requests fail.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		MaxRequests:   1,
		Interval:      60 * time.Second,
		Timeout:       30 * time.Second,
		FailureThresh: 5,
	}
}

// CircuitBreaker wraps gobreaker.CircuitBreaker[T] so callers deal in
// plain Go values instead of gobreaker's settings struct.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New builds a CircuitBreaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThresh
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker: if the breaker is open, fn never
// runs and gobreaker.ErrOpenState is returned.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	return c.cb.Execute(fn)
}

// State reports the breaker's current gobreaker.State.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}
