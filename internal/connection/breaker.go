package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"
)

// BreakerDialer wraps a Dialer with circuit breaker protection. After
// MaxFailures consecutive failed handshakes, dials fail fast until Timeout
// passes and one probe dial is let through.
type BreakerDialer struct {
	inner   Dialer
	breaker *gobreaker.CircuitBreaker[Transport]
}

// NewBreakerDialer wraps inner. Zero fields of cfg take their defaults.
func NewBreakerDialer(inner Dialer, cfg BreakerConfig, logger *slog.Logger) *BreakerDialer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultBreakerConfig()
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}

	cb := gobreaker.NewCircuitBreaker[Transport](gobreaker.Settings{
		Name:        "wsrpc:dial",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &BreakerDialer{inner: inner, breaker: cb}
}

// Dial routes the handshake through the breaker.
func (d *BreakerDialer) Dial(ctx context.Context, generation uint64) (Transport, error) {
	t, err := d.breaker.Execute(func() (Transport, error) {
		return d.inner.Dial(ctx, generation)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("dial circuit open: %w", err)
		}
		return nil, err
	}
	return t, nil
}

// State returns the current breaker state.
func (d *BreakerDialer) State() gobreaker.State {
	return d.breaker.State()
}

var _ Dialer = (*BreakerDialer)(nil)
