// Package circuitbreaker provides circuit breaker functionality using Sony's gobreaker
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"oauth2-client/internal/common/errors"
	"oauth2-client/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before allowing a trial call
	Timeout time.Duration
	// MaxConcurrentRequests is the number of trial calls allowed while half-open
	MaxConcurrentRequests int
}

// DefaultConfig returns the configuration used when a supplied one is invalid
func DefaultConfig() Config {
	return Config{
		MaxFailures:           3,
		Timeout:               10 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// State represents the current state of the circuit breaker
type State int

const (
	// StateClosed means calls flow through
	StateClosed State = iota
	// StateOpen means calls fail fast without I/O
	StateOpen
	// StateHalfOpen means a trial call is testing recovery
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats returns statistics about the circuit breaker
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Failures            int    `json:"failures"`
	Successes           int    `json:"successes"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

var (
	// TokenEndpointConfig guards token endpoint exchanges
	TokenEndpointConfig = Config{
		MaxFailures:           3,
		Timeout:               10 * time.Second,
		MaxConcurrentRequests: 1,
	}

	// RequestConfig guards whole authenticated calls against a resource server
	RequestConfig = Config{
		MaxFailures:           2,
		Timeout:               10 * time.Second,
		MaxConcurrentRequests: 1,
	}
)

// GoBreakerAdapter wraps Sony's gobreaker to match our interface
type GoBreakerAdapter struct {
	name   string
	config Config
	logger logging.Logger

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
}

// NewGoBreaker creates a new circuit breaker using Sony's gobreaker implementation
func NewGoBreaker(name string, config Config, logger logging.Logger) *GoBreakerAdapter {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.Field{Key: "error", Value: err.Error()},
			logging.Field{Key: "breaker", Value: name},
		)
		config = DefaultConfig()
	}

	g := &GoBreakerAdapter{
		name:   name,
		config: config,
		logger: logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker(g.settings())
	return g
}

func (g *GoBreakerAdapter) settings() gobreaker.Settings {
	maxFailures := uint32(g.config.MaxFailures)

	return gobreaker.Settings{
		Name:        g.name,
		MaxRequests: uint32(g.config.MaxConcurrentRequests),
		Timeout:     g.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			g.logger.Info("Circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
		IsSuccessful: isSuccessful,
	}
}

// isSuccessful decides which errors count against the breaker. Bad caller
// input and missing configuration say nothing about the remote side, and a
// cancelled context is the caller giving up.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}

	switch errors.GetType(err) {
	case errors.ErrTypeConfig, errors.ErrTypeValidation, errors.ErrTypeNotFound:
		return true
	}
	return false
}

func (g *GoBreakerAdapter) current() *gobreaker.CircuitBreaker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.breaker
}

// Name returns the breaker name
func (g *GoBreakerAdapter) Name() string {
	return g.name
}

// Execute runs fn within the circuit breaker. While the circuit is open fn is
// not called and a circuit_open error is returned.
func (g *GoBreakerAdapter) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := g.current().Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.CircuitOpenError(g.name, g.config.Timeout, err)
	}

	return err
}

// State returns the current state of the circuit breaker
func (g *GoBreakerAdapter) State() State {
	switch g.current().State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Stats returns current statistics
func (g *GoBreakerAdapter) Stats() Stats {
	counts := g.current().Counts()

	return Stats{
		Name:                g.name,
		State:               g.State().String(),
		Failures:            int(counts.TotalFailures),
		Successes:           int(counts.TotalSuccesses),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
	}
}

// IsOpen returns true if the circuit breaker is open
func (g *GoBreakerAdapter) IsOpen() bool {
	return g.State() == StateOpen
}

// Reset returns the breaker to a fresh closed state with its original settings.
// gobreaker has no reset, so the underlying breaker is rebuilt.
func (g *GoBreakerAdapter) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.breaker = gobreaker.NewCircuitBreaker(g.settings())
}

// Trip forces the breaker open by feeding it MaxFailures failures
func (g *GoBreakerAdapter) Trip() {
	breaker := g.current()
	for i := 0; i < g.config.MaxFailures; i++ {
		_, _ = breaker.Execute(func() (interface{}, error) {
			return nil, fmt.Errorf("forced failure to trip breaker")
		})
	}
}
