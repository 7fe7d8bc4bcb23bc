package connection

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/wsrpc/internal/calls"
	"github.com/rickgao/wsrpc/internal/metrics"
	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
	"github.com/rickgao/wsrpc/internal/subscription"
)

// Generation is one established connection together with everything scoped
// to it. Ids, pending calls and subscriptions never outlive their generation.
type Generation struct {
	ID uint64

	Calls *calls.Table
	Subs  *subscription.Table

	transport Transport
	router    *router.Router
	recorder  metrics.Recorder
	nextID    atomic.Uint64
}

func newGeneration(id uint64, t Transport, logger *slog.Logger, recorder metrics.Recorder) *Generation {
	g := &Generation{
		ID:        id,
		Calls:     calls.NewTable(),
		Subs:      subscription.NewTable(),
		transport: t,
		recorder:  recorder,
	}
	g.router = router.New(g.Calls.Shape, g.Subs.Shape, logger.With("generation", id))
	return g
}

// Issue sends a call and registers c to receive its reply. Every failure,
// including encoding and write errors, is reported through c. The id used
// is returned so the caller can abandon the call.
func (g *Generation) Issue(method string, shape router.Shape, params []any, c *calls.Completion) uint64 {
	id := g.nextID.Add(1) - 1

	data, err := protocol.EncodeRequest(id, method, params)
	if err != nil {
		c.Fail(err)
		return id
	}

	call := &calls.PendingCall{ID: id, Method: method, Shape: shape, Completion: c}
	if !g.Calls.Register(call) {
		// A failed table has already failed c.
		c.Fail(fmt.Errorf("call id %d already outstanding", id))
		return id
	}
	g.recorder.CallIssued(method)
	g.recorder.PendingCalls(1)

	// Registration happens before the send so a fast reply always finds it.
	g.transport.Send(data, func(err error) {
		if err == nil {
			return
		}
		if g.Calls.Remove(id) {
			g.recorder.PendingCalls(-1)
			c.Fail(err)
		}
	})
	return id
}

// Abandon forgets a pending call. A reply that arrives later is discarded
// as unmatched.
func (g *Generation) Abandon(id uint64) bool {
	if g.Calls.Remove(id) {
		g.recorder.PendingCalls(-1)
		return true
	}
	return false
}

// Transport returns the generation's transport.
func (g *Generation) Transport() Transport {
	return g.transport
}

// RouterStats returns decode statistics for this generation.
func (g *Generation) RouterStats() router.RouterStats {
	return g.router.Stats()
}

// retire closes the transport and ends every call and subscription.
func (g *Generation) retire(reason string, cause error) {
	g.transport.Close(reason)
	if n := g.Calls.FailAll(cause); n > 0 {
		g.recorder.PendingCalls(-n)
	}
	g.Subs.Clear(cause)
}
