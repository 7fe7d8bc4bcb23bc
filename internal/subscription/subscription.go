package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/queue"
	"github.com/rickgao/wsrpc/internal/router"
)

// State is the lifecycle state of a subscription.
type State int

const (
	StatePending State = iota
	StateActive
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return "cancelled"
	}
}

// initialQueueCapacity is the starting capacity of each event queue.
const initialQueueCapacity = 16

// Subscription tracks one subscription and buffers its events in arrival
// order.
type Subscription struct {
	localID     uuid.UUID
	method      string
	unsubscribe string
	shape       router.Shape
	generation  uint64

	mu       sync.Mutex
	state    State
	issued   protocol.IssuedID
	cause    error

	events *queue.Queue[router.Event]
}

// New creates a Pending subscription bound to a connection generation.
func New(generation uint64, method, unsubscribe string, shape router.Shape) *Subscription {
	return &Subscription{
		localID:     uuid.New(),
		method:      method,
		unsubscribe: unsubscribe,
		shape:       shape,
		generation:  generation,
		state:       StatePending,
		events:      queue.New[router.Event](initialQueueCapacity),
	}
}

// LocalID is the client-side identity, known before the server id.
func (s *Subscription) LocalID() uuid.UUID { return s.localID }

// Method is the subscribe method name.
func (s *Subscription) Method() string { return s.method }

// UnsubscribeMethod is the method used to cancel.
func (s *Subscription) UnsubscribeMethod() string { return s.unsubscribe }

// Shape is the expected event value shape.
func (s *Subscription) Shape() router.Shape { return s.shape }

// Generation is the connection generation the subscription lives on.
func (s *Subscription) Generation() uint64 { return s.generation }

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerID returns the server-assigned id, empty while Pending.
func (s *Subscription) ServerID() protocol.SubscriptionID {
	return s.Issued().ID
}

// Issued returns the server-assigned id in the form the server sent it.
func (s *Subscription) Issued() protocol.IssuedID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}

// Err returns why the subscription ended, nil while it is live.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Next returns the next event in arrival order. After the subscription ends
// and its buffered events are drained it returns the end cause.
func (s *Subscription) Next(ctx context.Context) (router.Event, error) {
	return s.events.Pop(ctx)
}

// TryNext returns a buffered event without waiting.
func (s *Subscription) TryNext() (router.Event, bool) {
	return s.events.TryPop()
}

// Buffered returns the number of events waiting to be consumed.
func (s *Subscription) Buffered() int {
	return s.events.Len()
}

func (s *Subscription) activate(id protocol.IssuedID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePending {
		return false
	}
	s.state = StateActive
	s.issued = id
	return true
}

// Finish moves the subscription to Cancelled. It is terminal; later calls
// are no-ops.
func (s *Subscription) Finish(cause error) {
	s.mu.Lock()
	if s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	s.state = StateCancelled
	s.cause = cause
	s.mu.Unlock()

	s.events.Close(cause)
}
