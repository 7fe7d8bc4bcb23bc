package wsrpc

import (
	"context"
	"fmt"

	"github.com/rickgao/wsrpc/internal/calls"
)

// Future is the pending outcome of an asynchronous operation.
type Future[T any] struct {
	c       *calls.Completion
	abandon func()
}

func newFuture[T any](c *calls.Completion, abandon func()) *Future[T] {
	return &Future[T]{c: c, abandon: abandon}
}

func failedFuture[T any](err error) *Future[T] {
	c := calls.NewCompletion()
	c.Fail(err)
	return &Future[T]{c: c}
}

// Done is closed once the outcome is known.
func (f *Future[T]) Done() <-chan struct{} {
	return f.c.Done()
}

// Wait blocks until the outcome is known or ctx ends. When ctx ends first
// the operation is abandoned: a reply arriving later is discarded and Wait
// returns ctx's error.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.c.Done():
	case <-ctx.Done():
		if f.c.Fail(ctx.Err()) && f.abandon != nil {
			f.abandon()
		}
	}
	return f.result()
}

func (f *Future[T]) result() (T, error) {
	var zero T
	v, err := f.c.Result()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &DecodeError{Err: fmt.Errorf("result is %T, not %T", v, zero)}
	}
	return t, nil
}
