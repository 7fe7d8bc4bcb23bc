package wsrpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/wsrpc/internal/config"
	"github.com/rickgao/wsrpc/internal/connection"
)

// BreakerConfig configures the circuit breaker around connect attempts.
type BreakerConfig = connection.BreakerConfig

type options struct {
	transport connection.TransportConfig
	breaker   *BreakerConfig
	logger    *slog.Logger

	registerer prometheus.Registerer
	namespace  string

	dialer connection.Dialer
}

// Option configures a Client.
type Option func(*options)

// WithURL sets the node endpoint.
func WithURL(url string) Option {
	return func(o *options) {
		o.transport.URL = url
	}
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if o.transport.Header == nil {
			o.transport.Header = http.Header{}
		}
		o.transport.Header.Add(key, value)
	}
}

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.transport.HandshakeTimeout = d
	}
}

// WithWriteTimeout sets the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.transport.WriteTimeout = d
	}
}

// WithReadLimit caps the size of one inbound message.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		o.transport.ReadLimit = n
	}
}

// WithFragmentSize sets the read chunk size.
func WithFragmentSize(n int) Option {
	return func(o *options) {
		o.transport.FragmentSize = n
	}
}

// WithKeepalive sets the ping schedule. An interval of zero disables pings.
func WithKeepalive(initialDelay, interval time.Duration) Option {
	return func(o *options) {
		o.transport.KeepaliveInitialDelay = initialDelay
		o.transport.KeepaliveInterval = interval
	}
}

// WithRateLimit throttles outbound messages.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.transport.MessagesPerSecond = perSecond
		o.transport.Burst = burst
	}
}

// WithBreaker routes connect attempts through a circuit breaker.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) {
		o.breaker = &cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPrometheus registers client metrics with reg.
func WithPrometheus(reg prometheus.Registerer, namespace string) Option {
	return func(o *options) {
		o.registerer = reg
		o.namespace = namespace
	}
}

func withDialer(d connection.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// FromConfig translates a loaded configuration into options.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithURL(cfg.Endpoint.URL),
		WithHandshakeTimeout(cfg.Endpoint.HandshakeTimeout),
		WithWriteTimeout(cfg.Endpoint.WriteTimeout),
		WithReadLimit(cfg.Endpoint.ReadLimit),
		WithFragmentSize(cfg.Endpoint.FragmentSize),
	}
	for k, v := range cfg.Endpoint.Headers {
		opts = append(opts, WithHeader(k, v))
	}

	if cfg.Keepalive.Disabled {
		opts = append(opts, WithKeepalive(0, 0))
	} else {
		opts = append(opts, WithKeepalive(cfg.Keepalive.InitialDelay, cfg.Keepalive.Interval))
	}

	if cfg.Limits.MessagesPerSecond > 0 {
		opts = append(opts, WithRateLimit(cfg.Limits.MessagesPerSecond, cfg.Limits.Burst))
	}

	if cfg.Breaker.Enabled {
		opts = append(opts, WithBreaker(BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		}))
	}

	return opts
}
