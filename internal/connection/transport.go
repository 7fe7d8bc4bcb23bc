package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/queue"
)

// controlTimeout bounds pong and close control frames.
const controlTimeout = time.Second

// pingPayload is the body of every keepalive ping.
var pingPayload = []byte{0}

type outbound struct {
	data []byte
	done func(error)
}

// WebSocketDialer opens gorilla/websocket transports.
type WebSocketDialer struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewWebSocketDialer creates a dialer for cfg.URL.
func NewWebSocketDialer(cfg TransportConfig, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial performs the opening handshake. The returned transport does not read
// until Start is called.
func (d *WebSocketDialer) Dial(ctx context.Context, generation uint64) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, d.cfg.URL, d.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	if d.cfg.ReadLimit > 0 {
		conn.SetReadLimit(d.cfg.ReadLimit)
	}

	t := newWSTransport(conn, generation, d.cfg, d.logger)
	d.logger.Debug("websocket connected", "url", d.cfg.URL, "generation", generation)
	return t, nil
}

// wsTransport implements Transport over one gorilla connection.
type wsTransport struct {
	cfg        TransportConfig
	logger     *slog.Logger
	conn       *websocket.Conn
	generation uint64

	writes  *queue.Queue[outbound]
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	connected atomic.Bool
	lastPong  atomic.Int64
}

func newWSTransport(conn *websocket.Conn, generation uint64, cfg TransportConfig, logger *slog.Logger) *wsTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		cfg:        cfg,
		logger:     logger.With("generation", generation),
		conn:       conn,
		generation: generation,
		writes:     queue.New[outbound](32),
		ctx:        ctx,
		cancel:     cancel,
	}
	if cfg.MessagesPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), burst)
	}
	t.connected.Store(true)
	t.lastPong.Store(time.Now().UnixNano())

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		err := conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(controlTimeout),
		)
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	conn.SetPongHandler(func(string) error {
		t.lastPong.Store(time.Now().UnixNano())
		return nil
	})

	return t
}

// Start begins the read loop, the write pump and keepalive.
func (t *wsTransport) Start(h Handler) {
	t.startOnce.Do(func() {
		go t.readLoop(h)
		go t.writePump()
		if t.cfg.KeepaliveInterval > 0 {
			go t.keepalive()
		}
	})
}

// Send queues data for the write pump.
func (t *wsTransport) Send(data []byte, done func(error)) {
	if !t.writes.Push(outbound{data: data, done: done}) && done != nil {
		done(protocol.ErrConnectionClosed)
	}
}

// IsConnected returns the current connection state.
func (t *wsTransport) IsConnected() bool {
	return t.connected.Load()
}

// Close sends a close frame with reason and closes the socket. Queued writes
// fail with ErrConnectionClosed.
func (t *wsTransport) Close(reason string) error {
	var err error
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		t.cancel()

		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(controlTimeout),
		)
		err = t.conn.Close()

		t.writes.Close(protocol.ErrConnectionClosed)
		for {
			item, ok := t.writes.TryPop()
			if !ok {
				break
			}
			if item.done != nil {
				item.done(protocol.ErrConnectionClosed)
			}
		}
		t.logger.Debug("websocket closed", "reason", reason)
	})
	return err
}

// readLoop delivers each inbound message as a sequence of fragments of at
// most FragmentSize bytes. A chunk is held back until the next read shows
// whether it was the final one.
func (t *wsTransport) readLoop(h Handler) {
	err := t.read(h)
	t.connected.Store(false)

	select {
	case <-t.ctx.Done():
		err = protocol.ErrConnectionClosed
	default:
		t.logger.Debug("read loop ended", "error", err)
	}
	h.HandleClose(t.generation, err)
}

func (t *wsTransport) read(h Handler) error {
	size := t.cfg.FragmentSize
	if size <= 0 {
		size = DefaultTransportConfig().FragmentSize
	}

	// Two buffers alternate: one holds the fragment waiting to learn whether
	// it is the last, the other takes the next read.
	bufs := [2][]byte{make([]byte, size), make([]byte, size)}
	for {
		_, r, err := t.conn.NextReader()
		if err != nil {
			return err
		}

		var held []byte
		next := 0
		for {
			chunk := bufs[next]
			n, err := io.ReadFull(r, chunk)
			switch {
			case err == nil:
				if held != nil {
					h.HandleFrame(t.generation, held, false)
				}
				held = chunk
				next ^= 1
				continue
			case errors.Is(err, io.ErrUnexpectedEOF):
				if held != nil {
					h.HandleFrame(t.generation, held, false)
				}
				h.HandleFrame(t.generation, chunk[:n], true)
			case errors.Is(err, io.EOF):
				if held == nil {
					held = chunk[:0]
				}
				h.HandleFrame(t.generation, held, true)
			default:
				return err
			}
			break
		}
	}
}

// writePump serializes writes to the connection.
func (t *wsTransport) writePump() {
	for {
		item, err := t.writes.Pop(t.ctx)
		if err != nil {
			return
		}

		err = t.write(item.data)
		if item.done != nil {
			item.done(err)
		}
		if err != nil {
			t.logger.Warn("write failed", "error", err)
			// Unblocks the read loop so the close is observed.
			t.conn.Close()
			return
		}
	}
}

func (t *wsTransport) write(data []byte) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(t.ctx); err != nil {
			return protocol.ErrConnectionClosed
		}
	}

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// keepalive pings the server: first after KeepaliveInitialDelay, then every
// KeepaliveInterval, until the transport closes.
func (t *wsTransport) keepalive() {
	timer := time.NewTimer(t.cfg.KeepaliveInitialDelay)
	defer timer.Stop()

	select {
	case <-t.ctx.Done():
		return
	case <-timer.C:
	}
	if !t.ping() {
		return
	}

	ticker := time.NewTicker(t.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if !t.ping() {
				return
			}
		}
	}
}

func (t *wsTransport) ping() bool {
	timeout := t.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = controlTimeout
	}
	err := t.conn.WriteControl(websocket.PingMessage, pingPayload, time.Now().Add(timeout))
	if err != nil {
		t.logger.Debug("keepalive ping failed", "error", err)
		return false
	}
	return true
}

// LastPong returns when the last pong was received.
func (t *wsTransport) LastPong() time.Time {
	return time.Unix(0, t.lastPong.Load())
}
