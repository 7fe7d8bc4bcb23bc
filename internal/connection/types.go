package connection

import (
	"context"
	"net/http"
	"time"
)

// Handler receives deliveries from one transport. Calls for a generation
// are made from a single goroutine, in arrival order.
type Handler interface {
	// HandleFrame delivers one fragment; last marks the end of a message.
	// fragment is only valid until HandleFrame returns.
	HandleFrame(generation uint64, fragment []byte, last bool)

	// HandleClose is called once when the transport's read side ends.
	HandleClose(generation uint64, err error)
}

// Transport is one open duplex connection.
type Transport interface {
	// Start begins delivering inbound frames to h.
	Start(h Handler)

	// Send queues a text message. done, if not nil, is called with the
	// write outcome. Send never blocks on the network.
	Send(data []byte, done func(error))

	// Close sends a close frame with reason and releases the connection.
	Close(reason string) error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, generation uint64) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, generation uint64) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, generation uint64) (Transport, error) {
	return f(ctx, generation)
}

// TransportConfig configures a WebSocket transport.
type TransportConfig struct {
	URL                   string        // WebSocket URL (e.g., ws://127.0.0.1:9944)
	Header                http.Header   // Extra handshake headers
	HandshakeTimeout      time.Duration // Bound on the opening handshake
	WriteTimeout          time.Duration // Write deadline for sends and control frames
	ReadLimit             int64         // Max inbound message size, 0 = unlimited
	FragmentSize          int           // Read chunk size delivered per fragment
	KeepaliveInitialDelay time.Duration // Delay before the first ping
	KeepaliveInterval     time.Duration // Period between pings, 0 disables keepalive
	MessagesPerSecond     float64       // Outbound throttle, 0 disables
	Burst                 int           // Throttle burst size
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		URL:                   "ws://127.0.0.1:9944",
		HandshakeTimeout:      60 * time.Second,
		WriteTimeout:          5 * time.Second,
		ReadLimit:             64 << 20,
		FragmentSize:          32 << 10,
		KeepaliveInitialDelay: 30 * time.Second,
		KeepaliveInterval:     45 * time.Second,
	}
}

// BreakerConfig configures the circuit breaker around dial attempts.
type BreakerConfig struct {
	MaxFailures uint32        // Consecutive failed dials before opening
	Timeout     time.Duration // Time open before a probe dial is allowed
	Interval    time.Duration // Closed-state period for clearing counts
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		Interval:    60 * time.Second,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connected     bool
	Generation    uint64
	PendingCalls  int
	Pending       int // Subscriptions awaiting their subscribe reply
	Active        int // Active subscriptions
	PartialFrames int // Generations with a fragment sequence in progress
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	URL string // Reported in connect errors and logs
}
