package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/wsrpc/internal/assembler"
	"github.com/rickgao/wsrpc/internal/metrics"
	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
)

// Manager owns the current generation and dispatches its inbound messages.
type Manager struct {
	cfg      ManagerConfig
	dialer   Dialer
	logger   *slog.Logger
	recorder metrics.Recorder

	assembler *assembler.Assembler

	// mu serializes generation swaps with Close.
	mu          sync.Mutex
	current     atomic.Pointer[Generation]
	generations atomic.Uint64
	closed      atomic.Bool
}

// NewManager creates a manager that opens connections with dialer.
func NewManager(cfg ManagerConfig, dialer Dialer, logger *slog.Logger, recorder metrics.Recorder) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Manager{
		cfg:       cfg,
		dialer:    dialer,
		logger:    logger,
		recorder:  recorder,
		assembler: assembler.New(),
	}
}

// Connect opens a new connection and makes it current. A previous
// connection is closed and its pending calls and subscriptions fail with
// ErrConnectionClosed. On failure the previous connection is left as is.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return protocol.ErrAlreadyClosed
	}

	id := m.generations.Add(1)
	t, err := m.dialer.Dial(ctx, id)
	if err != nil {
		m.recorder.ConnectAttempt(metrics.OutcomeError)
		m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
		return &protocol.ConnectError{URL: m.cfg.URL, Err: err}
	}

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		t.Close("close")
		return protocol.ErrAlreadyClosed
	}
	g := newGeneration(id, t, m.logger, m.recorder)
	prev := m.current.Swap(g)
	m.assembler.Retain(id)
	m.mu.Unlock()

	if prev != nil {
		cause := fmt.Errorf("%w: replaced by generation %d", protocol.ErrConnectionClosed, id)
		if prev.transport == t {
			prev.Calls.FailAll(cause)
			prev.Subs.Clear(cause)
		} else {
			prev.retire("reconnect", cause)
		}
	}

	// Reading starts only once g is current so no frame is judged stale.
	t.Start(m)

	m.recorder.ConnectAttempt(metrics.OutcomeOK)
	m.logger.Info("connected", "url", m.cfg.URL, "generation", id)
	return nil
}

// Close ends the current connection and makes the manager unusable. It is
// safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.closed.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return nil
	}
	prev := m.current.Swap(nil)
	m.mu.Unlock()

	if prev != nil {
		prev.retire("close", protocol.ErrConnectionClosed)
	}
	m.assembler.Retain(0)
	m.logger.Debug("manager closed")
	return nil
}

// Current returns the live generation.
func (m *Manager) Current() (*Generation, error) {
	if g := m.current.Load(); g != nil {
		return g, nil
	}
	if m.closed.Load() {
		return nil, protocol.ErrAlreadyClosed
	}
	return nil, protocol.ErrNotConnected
}

// IsConnected reports whether a connection is current.
func (m *Manager) IsConnected() bool {
	g := m.current.Load()
	return g != nil && g.transport.IsConnected()
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	stats := ManagerStats{PartialFrames: m.assembler.Pending()}
	g := m.current.Load()
	if g == nil {
		return stats
	}
	subs := g.Subs.Stats()
	stats.Connected = g.transport.IsConnected()
	stats.Generation = g.ID
	stats.PendingCalls = g.Calls.Len()
	stats.Pending = subs.Pending
	stats.Active = subs.Active
	return stats
}

// HandleFrame implements Handler.
func (m *Manager) HandleFrame(generation uint64, fragment []byte, last bool) {
	g := m.current.Load()
	if g == nil || g.ID != generation {
		m.assembler.Discard(generation)
		if last {
			m.recorder.FrameDiscarded(metrics.ReasonStale)
		}
		return
	}

	if !last {
		m.assembler.Append(generation, fragment)
		return
	}
	m.dispatch(g, g.router.Decode(m.assembler.Complete(generation, fragment)))
}

// HandleClose implements Handler. A lost connection is not re-established.
func (m *Manager) HandleClose(generation uint64, err error) {
	g := m.current.Load()
	if g == nil || g.ID != generation {
		return
	}
	if !m.current.CompareAndSwap(g, nil) {
		return
	}
	m.assembler.Discard(generation)

	cause := protocol.ErrConnectionClosed
	if err != nil && err != protocol.ErrConnectionClosed {
		cause = fmt.Errorf("%w: %w", protocol.ErrConnectionClosed, err)
	}
	m.logger.Warn("connection lost", "generation", generation, "error", err)
	g.retire("closed", cause)
}

func (m *Manager) dispatch(g *Generation, msg router.Message) {
	switch msg.Kind {
	case router.KindReply:
		call, ok := g.Calls.Resolve(msg.Reply.ID)
		if !ok {
			// Abandoned after the router saw it.
			m.recorder.FrameDiscarded(metrics.ReasonUnmatched)
			return
		}
		m.recorder.PendingCalls(-1)
		outcome := metrics.OutcomeOK
		if msg.Reply.Err != nil {
			outcome = metrics.OutcomeError
		}
		call.Completion.Complete(msg.Reply.Result, msg.Reply.Err)
		m.recorder.ReplyDispatched(outcome)

	case router.KindEvent:
		if g.Subs.Deliver(*msg.Event) {
			m.recorder.EventDispatched(metrics.OutcomeDelivered)
		} else {
			m.recorder.EventDispatched(metrics.OutcomeDropped)
		}

	case router.KindUnmatched:
		m.recorder.FrameDiscarded(metrics.ReasonUnmatched)

	default:
		m.recorder.FrameDiscarded(metrics.ReasonInvalid)
	}
}

var _ Handler = (*Manager)(nil)
