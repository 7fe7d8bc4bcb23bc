package calls

import "sync"

// Completion is the one-shot handle a caller waits on.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result any
	err    error

	// OnResult, if set, runs on the dispatching goroutine before the waiter
	// is released. It may transform the result or turn it into an error.
	OnResult func(result any) (any, error)
}

// NewCompletion creates an unresolved Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Complete resolves the handle. Only the first call has any effect; it
// reports whether this call was the one that resolved it.
func (c *Completion) Complete(result any, err error) bool {
	resolved := false
	c.once.Do(func() {
		if err == nil && c.OnResult != nil {
			result, err = c.OnResult(result)
		}
		c.result, c.err = result, err
		resolved = true
		close(c.done)
	})
	return resolved
}

// Fail resolves the handle with err.
func (c *Completion) Fail(err error) bool {
	return c.Complete(nil, err)
}

// Done is closed once the handle is resolved.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (c *Completion) Result() (any, error) {
	<-c.done
	return c.result, c.err
}
