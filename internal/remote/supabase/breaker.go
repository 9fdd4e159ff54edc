package supabase

import (
	"errors"
	"time"

	"memo-web/internal/observability"
	appErrors "memo-web/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the circuit breaker guarding the
// remote service.
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker once
	// MinRequests have been seen.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for circuit breaker
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Breaker fails fast while the remote service is unhealthy. It never
// retries.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates the breaker shared by every client instance.
func NewBreaker(config BreakerConfig, logger *zap.Logger, metrics *observability.Collector) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.RecordBreakerState(name, from.String(), to.String(), stateLevel(to))
		},
		// Rejected credentials and missing rows say nothing about the
		// service's health.
		IsSuccessful: func(err error) bool {
			switch appErrors.KindOf(err) {
			case "", appErrors.KindAuth, appErrors.KindNotFound, appErrors.KindValidation:
				return true
			}
			return false
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return appErrors.NewRemote("Service temporarily unavailable - too many failures", err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return appErrors.NewRemote("Service temporarily unavailable - too many requests", err)
	}
	return err
}

// State reports the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func stateLevel(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
