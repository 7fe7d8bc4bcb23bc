package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultURL                   = "ws://127.0.0.1:9944"
	DefaultHandshakeTimeout      = 60 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultReadLimit             = 64 << 20
	DefaultFragmentSize          = 32 << 10
	DefaultKeepaliveInitialDelay = 30 * time.Second
	DefaultKeepaliveInterval     = 45 * time.Second
	DefaultBreakerMaxFailures    = 5
	DefaultBreakerTimeout        = 30 * time.Second
	DefaultBreakerInterval       = 60 * time.Second
	DefaultMetricsNamespace      = "wsrpc"
	DefaultMetricsPath           = "/metrics"
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Endpoint defaults
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = DefaultURL
	}
	if c.Endpoint.HandshakeTimeout == 0 {
		c.Endpoint.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Endpoint.WriteTimeout == 0 {
		c.Endpoint.WriteTimeout = DefaultWriteTimeout
	}
	if c.Endpoint.ReadLimit == 0 {
		c.Endpoint.ReadLimit = DefaultReadLimit
	}
	if c.Endpoint.FragmentSize == 0 {
		c.Endpoint.FragmentSize = DefaultFragmentSize
	}

	// Keepalive defaults
	if c.Keepalive.InitialDelay == 0 {
		c.Keepalive.InitialDelay = DefaultKeepaliveInitialDelay
	}
	if c.Keepalive.Interval == 0 {
		c.Keepalive.Interval = DefaultKeepaliveInterval
	}

	// Limits defaults
	if c.Limits.MessagesPerSecond > 0 && c.Limits.Burst == 0 {
		c.Limits.Burst = 1
	}

	// Breaker defaults
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = DefaultBreakerMaxFailures
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = DefaultBreakerTimeout
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = DefaultBreakerInterval
	}

	// Metrics defaults
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
