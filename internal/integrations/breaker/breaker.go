// Package breaker guards a completion backend with a circuit breaker and an
// optional request rate limit.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Settings struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts. Zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// RatePerSecond limits calls to the backend. Zero disables limiting.
	RatePerSecond float64
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
	}
}

type Guard struct {
	next    Completer
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func New(next Completer, s Settings, logger *slog.Logger) (*Guard, error) {
	if next == nil {
		return nil, errors.New("breaker: completer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	g := &Guard{next: next, cb: cb}
	if s.RatePerSecond > 0 {
		burst := int(s.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(s.RatePerSecond), burst)
	}
	return g, nil
}

// Complete forwards to the wrapped backend unless the circuit is open.
func (g *Guard) Complete(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("breaker: rate limit wait: %w", err)
		}
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("breaker: completion backend unavailable: %w", err)
		}
		return "", err
	}
	return out.(string), nil
}

func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}
