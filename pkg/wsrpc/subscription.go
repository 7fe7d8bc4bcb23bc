package wsrpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rickgao/wsrpc/internal/calls"
	"github.com/rickgao/wsrpc/internal/connection"
	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
	"github.com/rickgao/wsrpc/internal/subscription"
)

// State is a subscription's lifecycle state.
type State = subscription.State

// Subscription states.
const (
	StatePending   = subscription.StatePending
	StateActive    = subscription.StateActive
	StateCancelled = subscription.StateCancelled
)

// SubscriptionID is a server-assigned subscription id.
type SubscriptionID = protocol.SubscriptionID

// SubscribeCall describes a subscription: the methods that open and close
// it and the shape of its events.
type SubscribeCall struct {
	Method      string
	Unsubscribe string
	Shape       Shape
}

// NewSubscribeCall describes a subscription whose events decode into a T.
func NewSubscribeCall[T any](method, unsubscribe string) SubscribeCall {
	return SubscribeCall{Method: method, Unsubscribe: unsubscribe, Shape: router.JSON[T]()}
}

// Event is one notification.
type Event struct {
	Method string // Notification method, e.g. chain_newHead
	Value  any    // Decoded with the subscription's shape
}

// Subscription is a stream of events in arrival order.
type Subscription struct {
	gen *connection.Generation
	sub *subscription.Subscription
}

// ID returns the client-local identity.
func (s *Subscription) ID() uuid.UUID { return s.sub.LocalID() }

// ServerID returns the id the server assigned.
func (s *Subscription) ServerID() SubscriptionID { return s.sub.ServerID() }

// State returns the current state.
func (s *Subscription) State() State { return s.sub.State() }

// Err returns why the subscription ended, or nil while it is live.
func (s *Subscription) Err() error { return s.sub.Err() }

// Next waits for the next event. After the subscription ends and buffered
// events are consumed it returns the end cause.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	ev, err := s.sub.Next(ctx)
	if err != nil {
		return Event{}, err
	}
	return Event{Method: ev.Method, Value: ev.Value}, nil
}

// TryNext returns a buffered event without waiting.
func (s *Subscription) TryNext() (Event, bool) {
	ev, ok := s.sub.TryNext()
	if !ok {
		return Event{}, false
	}
	return Event{Method: ev.Method, Value: ev.Value}, true
}

// NextAs waits for the next event and asserts its value to a T. The
// subscription must have been created with a JSON[T] shape.
func NextAs[T any](ctx context.Context, s *Subscription) (T, error) {
	var zero T
	ev, err := s.Next(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := ev.Value.(T)
	if !ok {
		return zero, &DecodeError{Err: fmt.Errorf("event is %T, not %T", ev.Value, zero)}
	}
	return v, nil
}

// Cancel sends the unsubscribe call and, once the server confirms, ends the
// subscription. No event is delivered after Cancel returns nil. A
// subscription that is not Active is cancelled locally. If the unsubscribe
// call fails the subscription stays Active.
func (s *Subscription) Cancel(ctx context.Context) error {
	if s.sub.State() != subscription.StateActive {
		s.gen.Subs.Withdraw(s.sub, protocol.ErrSubscriptionCancelled)
		return nil
	}

	id := s.sub.Issued()
	comp := calls.NewCompletion()
	// Removal runs on the dispatch goroutine so an event that follows the
	// confirmation is already unroutable.
	comp.OnResult = func(v any) (any, error) {
		s.gen.Subs.Remove(id.ID, protocol.ErrSubscriptionCancelled)
		return v, nil
	}
	callID := unsubscribe(s.gen, s.sub.UnsubscribeMethod(), id, comp)

	f := newFuture[any](comp, func() { s.gen.Abandon(callID) })
	if _, err := f.Wait(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", id.ID, err)
	}
	return nil
}

// unsubscribe issues method with the id exactly as the server issued it.
func unsubscribe(g *connection.Generation, method string, id protocol.IssuedID, c *calls.Completion) uint64 {
	return g.Issue(method, router.Raw(), []any{id.Param()}, c)
}
