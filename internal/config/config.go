package config

import "time"

// Config is the root configuration for a client.
type Config struct {
	Endpoint  EndpointConfig  `yaml:"endpoint"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Limits    LimitsConfig    `yaml:"limits"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// EndpointConfig holds the node connection settings.
type EndpointConfig struct {
	URL              string            `yaml:"url"`
	Headers          map[string]string `yaml:"headers"` // Extra handshake headers
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	ReadLimit        int64             `yaml:"read_limit"`    // Max inbound message bytes
	FragmentSize     int               `yaml:"fragment_size"` // Read chunk size
}

// KeepaliveConfig controls client pings.
type KeepaliveConfig struct {
	Disabled     bool          `yaml:"disabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Interval     time.Duration `yaml:"interval"`
}

// LimitsConfig throttles outbound messages. Zero disables throttling.
type LimitsConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

// BreakerConfig guards connect attempts with a circuit breaker.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// MetricsConfig holds Prometheus settings. An empty Listen disables the
// metrics endpoint.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
