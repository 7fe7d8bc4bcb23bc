package wsrpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rickgao/wsrpc/internal/calls"
	"github.com/rickgao/wsrpc/internal/connection"
	"github.com/rickgao/wsrpc/internal/metrics"
	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
	"github.com/rickgao/wsrpc/internal/subscription"
	"github.com/rickgao/wsrpc/internal/version"
)

// Shape tells the client how to decode a result or event payload.
type Shape = router.Shape

// JSON returns a Shape that unmarshals into a T.
func JSON[T any]() Shape { return router.JSON[T]() }

// Raw returns a Shape that keeps the payload as json.RawMessage.
func Raw() Shape { return router.Raw() }

// Stats describes the current connection.
type Stats = connection.ManagerStats

// Client multiplexes calls and subscriptions over one connection.
type Client struct {
	manager *connection.Manager
}

// New creates a disconnected client.
func New(opts ...Option) (*Client, error) {
	o := options{
		transport: connection.DefaultTransportConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	header := o.transport.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", version.UserAgent())
	}
	o.transport.Header = header

	var recorder metrics.Recorder
	if o.registerer != nil {
		p, err := metrics.NewPrometheus(o.registerer, o.namespace)
		if err != nil {
			return nil, err
		}
		recorder = p
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = connection.NewWebSocketDialer(o.transport, o.logger)
	}
	if o.breaker != nil {
		dialer = connection.NewBreakerDialer(dialer, *o.breaker, o.logger)
	}

	return &Client{
		manager: connection.NewManager(connection.ManagerConfig{URL: o.transport.URL}, dialer, o.logger, recorder),
	}, nil
}

// ConnectAsync opens a connection in the background. The future resolves
// true once the connection is open.
func (c *Client) ConnectAsync(ctx context.Context) *Future[bool] {
	comp := calls.NewCompletion()
	go func() {
		if err := c.manager.Connect(ctx); err != nil {
			comp.Fail(err)
			return
		}
		comp.Complete(true, nil)
	}()
	return newFuture[bool](comp, nil)
}

// Connect opens a connection, replacing any current one.
func (c *Client) Connect(ctx context.Context) error {
	return c.manager.Connect(ctx)
}

// Close releases the connection. Pending calls fail with
// ErrConnectionClosed and subscriptions end. The client cannot be
// reconnected afterwards.
func (c *Client) Close() error {
	return c.manager.Close()
}

// IsConnected reports whether a connection is open.
func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

// Call sends method with params and decodes the result with shape.
func (c *Client) Call(method string, shape Shape, params ...any) *Future[any] {
	return issue[any](c, method, shape, params)
}

// CallAs sends method with params and decodes the result into a T.
func CallAs[T any](c *Client, method string, params ...any) *Future[T] {
	return issue[T](c, method, router.JSON[T](), params)
}

func issue[T any](c *Client, method string, shape Shape, params []any) *Future[T] {
	g, err := c.manager.Current()
	if err != nil {
		return failedFuture[T](err)
	}
	comp := calls.NewCompletion()
	id := g.Issue(method, shape, params, comp)
	return newFuture[T](comp, func() { g.Abandon(id) })
}

// Subscribe issues call's subscribe method. The future resolves with an
// Active subscription once the server acknowledges it.
func (c *Client) Subscribe(call SubscribeCall, params ...any) *Future[*Subscription] {
	g, err := c.manager.Current()
	if err != nil {
		return failedFuture[*Subscription](err)
	}

	shape := call.Shape
	if shape == nil {
		shape = router.Raw()
	}
	sub := subscription.New(g.ID, call.Method, call.Unsubscribe, shape)
	if err := g.Subs.AddPending(sub); err != nil {
		return failedFuture[*Subscription](err)
	}
	handle := &Subscription{gen: g, sub: sub}

	ack := calls.NewCompletion()
	// Promotion runs on the dispatch goroutine, before any later event
	// from the same connection is routed. An ack for a subscription that
	// was withdrawn in the meantime is unsubscribed straight away.
	ack.OnResult = func(v any) (any, error) {
		id := v.(protocol.IssuedID)
		if _, err := g.Subs.Promote(sub.LocalID(), id); err != nil {
			if errors.Is(err, protocol.ErrSubscriptionCancelled) {
				unsubscribe(g, call.Unsubscribe, id, calls.NewCompletion())
			}
			return nil, err
		}
		return handle, nil
	}

	comp := calls.NewCompletion()
	go func() {
		<-ack.Done()
		v, err := ack.Result()
		if err != nil {
			g.Subs.Abort(sub.LocalID(), err)
		}
		comp.Complete(v, err)
	}()

	g.Issue(call.Method, router.SubscriptionID(), params, ack)
	return newFuture[*Subscription](comp, func() {
		if id, ok := g.Subs.Withdraw(sub, protocol.ErrSubscriptionCancelled); ok {
			unsubscribe(g, call.Unsubscribe, id, calls.NewCompletion())
		}
	})
}

// Stats returns connection statistics.
func (c *Client) Stats() Stats {
	return c.manager.Stats()
}
