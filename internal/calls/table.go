package calls

import (
	"sync"

	"github.com/rickgao/wsrpc/internal/router"
)

// PendingCall is one in-flight call.
type PendingCall struct {
	ID         uint64
	Method     string
	Shape      router.Shape
	Completion *Completion
}

// Table maps call ids to pending calls.
type Table struct {
	mu      sync.Mutex
	pending map[uint64]*PendingCall
	closed  error
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{pending: make(map[uint64]*PendingCall)}
}

// Register adds a call. It returns false if the id is already outstanding,
// or the table has been failed, in which case the call is failed with the
// table's cause.
func (t *Table) Register(call *PendingCall) bool {
	t.mu.Lock()
	if t.closed != nil {
		cause := t.closed
		t.mu.Unlock()
		call.Completion.Fail(cause)
		return false
	}
	if _, exists := t.pending[call.ID]; exists {
		t.mu.Unlock()
		return false
	}
	t.pending[call.ID] = call
	t.mu.Unlock()
	return true
}

// Shape returns the expected result shape for id.
func (t *Table) Shape(id uint64) (router.Shape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	return call.Shape, true
}

// Resolve removes and returns the call for id. A second Resolve for the
// same id returns false.
func (t *Table) Resolve(id uint64) (*PendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	return call, ok
}

// Remove drops the call for id without resolving it.
func (t *Table) Remove(id uint64) bool {
	_, ok := t.Resolve(id)
	return ok
}

// FailAll fails every pending call with cause, empties the table and makes
// later registrations fail with the same cause.
func (t *Table) FailAll(cause error) int {
	t.mu.Lock()
	calls := t.pending
	t.pending = make(map[uint64]*PendingCall)
	t.closed = cause
	t.mu.Unlock()

	for _, call := range calls {
		call.Completion.Fail(cause)
	}
	return len(calls)
}

// Len returns the number of pending calls.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
