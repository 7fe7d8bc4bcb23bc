package subscription

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
)

// Table maps subscriptions by local id while Pending and by server id once
// Active.
type Table struct {
	mu      sync.RWMutex
	pending map[uuid.UUID]*Subscription
	active  map[protocol.SubscriptionID]*Subscription
	closed  error
}

// TableStats counts subscriptions by state.
type TableStats struct {
	Pending int
	Active  int
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		pending: make(map[uuid.UUID]*Subscription),
		active:  make(map[protocol.SubscriptionID]*Subscription),
	}
}

// AddPending holds sub until its subscribe call resolves.
func (t *Table) AddPending(sub *Subscription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		sub.Finish(t.closed)
		return t.closed
	}
	t.pending[sub.LocalID()] = sub
	return nil
}

// Promote registers a Pending subscription under its server id and marks it
// Active.
func (t *Table) Promote(localID uuid.UUID, id protocol.IssuedID) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.pending[localID]
	if !ok {
		if t.closed != nil {
			return nil, t.closed
		}
		return nil, fmt.Errorf("subscription %s is not pending", localID)
	}
	delete(t.pending, localID)

	if _, exists := t.active[id.ID]; exists {
		err := fmt.Errorf("subscription id %s already active", id.ID)
		sub.Finish(err)
		return nil, err
	}
	if !sub.activate(id) {
		return nil, fmt.Errorf("subscription %s: %w", localID, protocol.ErrSubscriptionCancelled)
	}
	t.active[id.ID] = sub
	return sub, nil
}

// Withdraw cancels sub locally with cause. A Pending subscription stays
// registered so Promote rejects its late acknowledgement with
// ErrSubscriptionCancelled. An Active one is unregistered and its issued id
// returned so the caller can unsubscribe.
func (t *Table) Withdraw(sub *Subscription, cause error) (protocol.IssuedID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[sub.LocalID()]; ok {
		sub.Finish(cause)
		return protocol.IssuedID{}, false
	}
	id := sub.Issued()
	if t.active[id.ID] != sub {
		return protocol.IssuedID{}, false
	}
	delete(t.active, id.ID)
	sub.Finish(cause)
	return id, true
}

// Abort drops a Pending subscription whose subscribe call failed.
func (t *Table) Abort(localID uuid.UUID, cause error) {
	t.mu.Lock()
	sub, ok := t.pending[localID]
	delete(t.pending, localID)
	t.mu.Unlock()

	if ok {
		sub.Finish(cause)
	}
}

// Shape returns the event shape of an Active subscription.
func (t *Table) Shape(id protocol.SubscriptionID) (router.Shape, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sub, ok := t.active[id]
	if !ok {
		return nil, false
	}
	return sub.Shape(), true
}

// Deliver queues ev on the matching Active subscription. The lookup and push
// happen under the table lock so they cannot interleave with Remove.
func (t *Table) Deliver(ev router.Event) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sub, ok := t.active[ev.Subscription]
	if !ok {
		return false
	}
	return sub.events.Push(ev)
}

// Get returns the Active subscription for id.
func (t *Table) Get(id protocol.SubscriptionID) (*Subscription, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sub, ok := t.active[id]
	return sub, ok
}

// Remove unregisters an Active subscription and cancels it.
func (t *Table) Remove(id protocol.SubscriptionID, cause error) bool {
	t.mu.Lock()
	sub, ok := t.active[id]
	delete(t.active, id)
	t.mu.Unlock()

	if ok {
		sub.Finish(cause)
	}
	return ok
}

// Clear cancels every subscription with cause and makes later AddPending
// calls fail.
func (t *Table) Clear(cause error) int {
	t.mu.Lock()
	pending, active := t.pending, t.active
	t.pending = make(map[uuid.UUID]*Subscription)
	t.active = make(map[protocol.SubscriptionID]*Subscription)
	t.closed = cause
	t.mu.Unlock()

	for _, sub := range pending {
		sub.Finish(cause)
	}
	for _, sub := range active {
		sub.Finish(cause)
	}
	return len(pending) + len(active)
}

// Stats returns subscription counts.
func (t *Table) Stats() TableStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TableStats{Pending: len(t.pending), Active: len(t.active)}
}
