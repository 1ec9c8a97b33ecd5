package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reputul/reputul-backend/internal/monitoring"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrProviderUnavailable is returned when a provider's circuit is open
var ErrProviderUnavailable = errors.New("delivery provider unavailable")

// BreakerConfig holds circuit breaker settings for delivery providers
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed through
	// while the breaker is half-open
	MaxRequests uint32
	// Interval is the cyclic period of the closed state for clearing
	// the internal counts
	Interval time.Duration
	// Timeout is the period of the open state before half-open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before
	// opening the circuit
	FailureThreshold uint32
}

// DefaultBreakerConfig returns default circuit breaker settings
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerManager holds one circuit breaker per delivery provider so a
// failing provider cannot burn campaign step attempts on every sweep.
type BreakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   *BreakerConfig
	mu       sync.RWMutex
}

// NewBreakerManager creates a new breaker manager
func NewBreakerManager(config *BreakerConfig) *BreakerManager {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &BreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

func (m *BreakerManager) breaker(provider string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[provider]
	m.mu.RUnlock()
	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = m.breakers[provider]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("provider-%s", provider),
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			monitoring.SetCircuitBreakerState(name, stateValue(to))
		},
	})

	m.breakers[provider] = cb
	return cb
}

// Execute runs a provider call with circuit breaker protection
func (m *BreakerManager) Execute(ctx context.Context, provider string, fn func() (string, error)) (string, error) {
	cb := m.breaker(provider)

	result, err := cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("provider", provider).
				Msg("Circuit breaker is open, rejecting send")
			return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
		}
		return "", err
	}

	return result.(string), nil
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
