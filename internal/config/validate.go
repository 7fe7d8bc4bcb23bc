package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Endpoint.URL == "" {
		return errors.New("endpoint.url is required")
	}
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil {
		return fmt.Errorf("endpoint.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Endpoint.HandshakeTimeout < 0 {
		return errors.New("endpoint.handshake_timeout must be >= 0")
	}
	if c.Endpoint.WriteTimeout < 0 {
		return errors.New("endpoint.write_timeout must be >= 0")
	}
	if c.Endpoint.ReadLimit < 0 {
		return errors.New("endpoint.read_limit must be >= 0")
	}
	if c.Endpoint.FragmentSize < 1 {
		return errors.New("endpoint.fragment_size must be >= 1")
	}

	if !c.Keepalive.Disabled {
		if c.Keepalive.InitialDelay < 0 {
			return errors.New("keepalive.initial_delay must be >= 0")
		}
		if c.Keepalive.Interval <= 0 {
			return errors.New("keepalive.interval must be > 0")
		}
	}

	if c.Limits.MessagesPerSecond < 0 {
		return errors.New("limits.messages_per_second must be >= 0")
	}
	if c.Limits.MessagesPerSecond > 0 && c.Limits.Burst < 1 {
		return errors.New("limits.burst must be >= 1 when throttling")
	}

	if c.Breaker.Enabled && c.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}

	if c.Metrics.Listen != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
