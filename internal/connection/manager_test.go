package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsrpc/internal/calls"
	"github.com/rickgao/wsrpc/internal/metrics"
	"github.com/rickgao/wsrpc/internal/protocol"
	"github.com/rickgao/wsrpc/internal/router"
	"github.com/rickgao/wsrpc/internal/subscription"
)

type testRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer answers each request with the value returned by reply. If reply
// returns false the request goes unanswered. Extra messages returned are
// written after the reply.
func rpcServer(t *testing.T, reply func(req testRequest) (result any, extra []string, ok bool)) string {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req testRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Logf("bad request: %v", err)
				return
			}
			result, extra, ok := reply(req)
			if !ok {
				continue
			}
			out, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
			for _, m := range extra {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
					return
				}
			}
		}
	})
	return wsURL(server)
}

func newTestManager(url string, recorder metrics.Recorder) *Manager {
	cfg := testTransportConfig(url)
	return NewManager(ManagerConfig{URL: url}, NewWebSocketDialer(cfg, nil), nil, recorder)
}

func await(t *testing.T, c *calls.Completion) (any, error) {
	t.Helper()
	select {
	case <-c.Done():
		return c.Result()
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for completion")
		return nil, nil
	}
}

func TestManager_CallRoundTrip(t *testing.T) {
	url := rpcServer(t, func(req testRequest) (any, []string, bool) {
		return map[string]any{"method": req.Method, "params": len(req.Params)}, nil, true
	})

	m := newTestManager(url, nil)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()

	g, err := m.Current()
	require.NoError(t, err)

	type echo struct {
		Method string `json:"method"`
		Params int    `json:"params"`
	}

	c := calls.NewCompletion()
	id := g.Issue("system_name", router.JSON[echo](), []any{1, "two"}, c)
	assert.Equal(t, uint64(0), id)

	v, err := await(t, c)
	require.NoError(t, err)
	assert.Equal(t, echo{Method: "system_name", Params: 2}, v)
	assert.Equal(t, 0, g.Calls.Len())
}

func TestManager_ConcurrentCalls(t *testing.T) {
	url := rpcServer(t, func(req testRequest) (any, []string, bool) {
		return req.ID, nil, true
	})

	m := newTestManager(url, nil)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()
	g, err := m.Current()
	require.NoError(t, err)

	const n = 100
	var mu sync.Mutex
	seen := make(map[uint64]bool)

	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			c := calls.NewCompletion()
			id := g.Issue("echo_id", router.JSON[uint64](), nil, c)
			select {
			case <-c.Done():
			case <-time.After(2 * time.Second):
				return fmt.Errorf("call %d timed out", id)
			}
			v, err := c.Result()
			if err != nil {
				return err
			}
			if v.(uint64) != id {
				return fmt.Errorf("call %d got reply for %d", id, v)
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	assert.Len(t, seen, n)
	assert.Equal(t, 0, g.Calls.Len())
}

func TestManager_UnmatchedReplyIgnored(t *testing.T) {
	url := rpcServer(t, func(req testRequest) (any, []string, bool) {
		stray := `{"jsonrpc":"2.0","id":999,"result":"stray"}`
		return "ok", []string{stray, `not json`}, true
	})

	rec := newCountingRecorder()
	m := newTestManager(url, rec)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()
	g, _ := m.Current()

	first := calls.NewCompletion()
	g.Issue("a", router.JSON[string](), nil, first)
	v, err := await(t, first)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	second := calls.NewCompletion()
	g.Issue("b", router.JSON[string](), nil, second)
	v, err = await(t, second)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	require.Eventually(t, func() bool {
		return rec.count("discard:"+metrics.ReasonUnmatched) >= 1 && rec.count("discard:"+metrics.ReasonInvalid) >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_SubscriptionEvents(t *testing.T) {
	url := rpcServer(t, func(req testRequest) (any, []string, bool) {
		if req.Method != "chain_subscribeNewHead" {
			return nil, nil, false
		}
		var events []string
		for i := 1; i <= 3; i++ {
			events = append(events, fmt.Sprintf(
				`{"jsonrpc":"2.0","method":"chain_newHead","params":{"subscription":"s1","result":{"number":%d}}}`, i))
		}
		return "s1", events, true
	})

	m := newTestManager(url, nil)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()
	g, _ := m.Current()

	type head struct {
		Number int `json:"number"`
	}
	sub := subscription.New(g.ID, "chain_subscribeNewHead", "chain_unsubscribeNewHead", router.JSON[head]())
	require.NoError(t, g.Subs.AddPending(sub))

	c := calls.NewCompletion()
	c.OnResult = func(v any) (any, error) {
		return g.Subs.Promote(sub.LocalID(), v.(protocol.IssuedID))
	}
	g.Issue(sub.Method(), router.SubscriptionID(), nil, c)

	_, err := await(t, c)
	require.NoError(t, err)
	assert.Equal(t, subscription.StateActive, sub.State())
	assert.Equal(t, protocol.SubscriptionID("s1"), sub.ServerID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 1; i <= 3; i++ {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, "chain_newHead", ev.Method)
		assert.Equal(t, head{Number: i}, ev.Value)
	}
}

func TestManager_ReconnectResetsGeneration(t *testing.T) {
	url := rpcServer(t, func(req testRequest) (any, []string, bool) {
		if req.Method == "hang" {
			return nil, nil, false
		}
		return req.ID, nil, true
	})

	m := newTestManager(url, nil)
	defer m.Close()
	require.NoError(t, m.Connect(context.Background()))
	first, _ := m.Current()

	hang := calls.NewCompletion()
	first.Issue("echo_id", router.JSON[uint64](), nil, calls.NewCompletion())
	first.Issue("hang", router.Raw(), nil, hang)
	sub := subscription.New(first.ID, "s", "u", router.Raw())
	require.NoError(t, first.Subs.AddPending(sub))

	require.NoError(t, m.Connect(context.Background()))
	second, _ := m.Current()
	assert.NotEqual(t, first.ID, second.ID)

	_, err := await(t, hang)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
	assert.Equal(t, subscription.StateCancelled, sub.State())
	assert.Equal(t, 0, first.Calls.Len())
	assert.False(t, first.Transport().IsConnected())

	c := calls.NewCompletion()
	assert.Equal(t, uint64(0), second.Issue("echo_id", router.JSON[uint64](), nil, c))
	v, err := await(t, c)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestManager_Close(t *testing.T) {
	url := rpcServer(t, func(testRequest) (any, []string, bool) { return nil, nil, false })

	m := newTestManager(url, nil)
	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()

	c := calls.NewCompletion()
	g.Issue("hang", router.Raw(), nil, c)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := await(t, c)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)

	_, err = m.Current()
	assert.ErrorIs(t, err, protocol.ErrAlreadyClosed)
	assert.ErrorIs(t, m.Connect(context.Background()), protocol.ErrAlreadyClosed)
	assert.False(t, m.IsConnected())

	late := calls.NewCompletion()
	g.Issue("late", router.Raw(), nil, late)
	_, err = await(t, late)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
}

func TestManager_ServerDisconnect(t *testing.T) {
	drop := make(chan struct{})
	server := mockWSServer(t, func(conn *websocket.Conn) {
		<-drop
	})

	m := newTestManager(wsURL(server), nil)
	require.NoError(t, m.Connect(context.Background()))
	defer m.Close()
	g, _ := m.Current()

	c := calls.NewCompletion()
	g.Issue("hang", router.Raw(), nil, c)
	close(drop)

	_, err := await(t, c)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)

	require.Eventually(t, func() bool {
		_, err := m.Current()
		return errors.Is(err, protocol.ErrNotConnected)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestManager_ConnectFailure(t *testing.T) {
	dialErr := errors.New("refused")
	rec := newCountingRecorder()
	m := NewManager(ManagerConfig{URL: "ws://nowhere"}, DialerFunc(func(context.Context, uint64) (Transport, error) {
		return nil, dialErr
	}), nil, rec)

	err := m.Connect(context.Background())
	var ce *protocol.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ws://nowhere", ce.URL)
	assert.ErrorIs(t, err, dialErr)
	assert.Equal(t, 1, rec.count("connect:"+metrics.OutcomeError))

	_, err = m.Current()
	assert.ErrorIs(t, err, protocol.ErrNotConnected)
}

// fakeTransport records sends and lets tests push frames directly.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	handler Handler
	reason  string
	closed  bool
}

func (f *fakeTransport) Start(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTransport) Send(data []byte, done func(error)) {
	f.mu.Lock()
	closed := f.closed
	if !closed {
		f.sent = append(f.sent, data)
	}
	f.mu.Unlock()
	if done == nil {
		return
	}
	if closed {
		done(protocol.ErrConnectionClosed)
		return
	}
	done(nil)
}

func (f *fakeTransport) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.reason = reason
	}
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func fakeManager(t *testing.T, rec metrics.Recorder) (*Manager, *[]*fakeTransport) {
	var transports []*fakeTransport
	m := NewManager(ManagerConfig{URL: "ws://fake"}, DialerFunc(func(context.Context, uint64) (Transport, error) {
		ft := &fakeTransport{}
		transports = append(transports, ft)
		return ft, nil
	}), nil, rec)
	t.Cleanup(func() { m.Close() })
	return m, &transports
}

func split(data []byte, k int) [][]byte {
	size := (len(data) + k - 1) / k
	var parts [][]byte
	for len(data) > size {
		parts = append(parts, data[:size])
		data = data[size:]
	}
	return append(parts, data)
}

func TestManager_FragmentedReply(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("fragments=%d", k), func(t *testing.T) {
			m, _ := fakeManager(t, nil)
			require.NoError(t, m.Connect(context.Background()))
			g, _ := m.Current()

			c := calls.NewCompletion()
			id := g.Issue("state_getMetadata", router.JSON[string](), nil, c)

			reply := []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"0x6d657461"}`, id))
			parts := split(reply, k)
			require.Len(t, parts, k)
			for i, part := range parts {
				m.HandleFrame(g.ID, part, i == len(parts)-1)
			}

			v, err := await(t, c)
			require.NoError(t, err)
			assert.Equal(t, "0x6d657461", v)
			assert.Equal(t, 0, m.Stats().PartialFrames)
		})
	}
}

func TestManager_StaleFramesDropped(t *testing.T) {
	rec := newCountingRecorder()
	m, transports := fakeManager(t, rec)
	require.NoError(t, m.Connect(context.Background()))
	old, _ := m.Current()

	c := calls.NewCompletion()
	old.Issue("a", router.Raw(), nil, c)

	// Half a message on the old generation, then a reconnect.
	m.HandleFrame(old.ID, []byte(`{"jsonrpc":"2.0",`), false)
	require.NoError(t, m.Connect(context.Background()))
	cur, _ := m.Current()
	assert.Equal(t, "reconnect", (*transports)[0].reason)

	m.HandleFrame(old.ID, []byte(`"id":0,"result":1}`), true)
	assert.Equal(t, 1, rec.count("discard:"+metrics.ReasonStale))
	assert.Equal(t, 0, m.Stats().PartialFrames)

	fresh := calls.NewCompletion()
	id := cur.Issue("b", router.JSON[int](), nil, fresh)
	m.HandleFrame(cur.ID, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":7}`, id)), true)

	v, err := await(t, fresh)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = await(t, c)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
}

func TestManager_NoDispatchAfterClose(t *testing.T) {
	rec := newCountingRecorder()
	m, transports := fakeManager(t, rec)
	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()

	c := calls.NewCompletion()
	id := g.Issue("a", router.JSON[int](), nil, c)
	sub := subscription.New(g.ID, "chain_subscribeNewHead", "chain_unsubscribeNewHead", router.Raw())
	require.NoError(t, g.Subs.AddPending(sub))
	_, err := g.Subs.Promote(sub.LocalID(), protocol.IssuedID{ID: "s1", Raw: json.RawMessage(`"s1"`)})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.Equal(t, "close", (*transports)[0].reason)

	// Frames still arriving for the closed connection are discarded.
	m.HandleFrame(g.ID, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":1}`, id)), true)
	m.HandleFrame(g.ID, []byte(`{"jsonrpc":"2.0","method":"chain_newHead","params":{"subscription":"s1","result":{}}}`), true)
	assert.Equal(t, 2, rec.count("discard:"+metrics.ReasonStale))
	assert.Equal(t, 0, rec.count("event:"+metrics.OutcomeDelivered))

	_, err = await(t, c)
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
	_, ok := sub.TryNext()
	assert.False(t, ok)
	assert.Equal(t, subscription.StateCancelled, sub.State())
}

func TestManager_ServerErrorReply(t *testing.T) {
	m, _ := fakeManager(t, nil)
	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()

	c := calls.NewCompletion()
	id := g.Issue("author_submitExtrinsic", router.Raw(), []any{"0x00"}, c)
	m.HandleFrame(g.ID, []byte(fmt.Sprintf(
		`{"jsonrpc":"2.0","id":%d,"error":{"code":-32602,"message":"Invalid params"}}`, id)), true)

	_, err := await(t, c)
	var se *protocol.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, -32602, se.Code)
	assert.Equal(t, "Invalid params", se.Message)
}

func TestManager_EncodeFailureAffectsOnlyThatCall(t *testing.T) {
	m, transports := fakeManager(t, nil)
	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()

	bad := calls.NewCompletion()
	g.Issue("bad", router.Raw(), []any{make(chan int)}, bad)
	_, err := await(t, bad)
	var ee *protocol.EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "bad", ee.Method)

	good := calls.NewCompletion()
	id := g.Issue("good", router.JSON[bool](), nil, good)
	m.HandleFrame(g.ID, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, id)), true)
	v, err := await(t, good)
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Len(t, (*transports)[0].sent, 1)
}

func TestManager_AbandonedReplyUnmatched(t *testing.T) {
	rec := newCountingRecorder()
	m, _ := fakeManager(t, rec)
	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()

	c := calls.NewCompletion()
	id := g.Issue("slow", router.Raw(), nil, c)
	assert.True(t, g.Abandon(id))
	assert.False(t, g.Abandon(id))

	m.HandleFrame(g.ID, []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":null}`, id)), true)
	assert.Equal(t, 1, rec.count("discard:"+metrics.ReasonUnmatched))
	assert.Equal(t, 0, rec.pending())

	select {
	case <-c.Done():
		t.Fatal("abandoned call must not be resolved by a late reply")
	default:
	}
}

func TestManager_Stats(t *testing.T) {
	m, _ := fakeManager(t, nil)
	assert.False(t, m.Stats().Connected)

	require.NoError(t, m.Connect(context.Background()))
	g, _ := m.Current()
	g.Issue("x", router.Raw(), nil, calls.NewCompletion())
	require.NoError(t, g.Subs.AddPending(subscription.New(g.ID, "s", "u", router.Raw())))

	stats := m.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, g.ID, stats.Generation)
	assert.Equal(t, 1, stats.PendingCalls)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Active)
}

// countingRecorder tallies recorder calls by kind and label.
type countingRecorder struct {
	mu       sync.Mutex
	counts   map[string]int
	inFlight int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) inc(key string) {
	r.mu.Lock()
	r.counts[key]++
	r.mu.Unlock()
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *countingRecorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

func (r *countingRecorder) CallIssued(method string)       { r.inc("call:" + method) }
func (r *countingRecorder) ReplyDispatched(outcome string) { r.inc("reply:" + outcome) }
func (r *countingRecorder) EventDispatched(outcome string) { r.inc("event:" + outcome) }
func (r *countingRecorder) FrameDiscarded(reason string)   { r.inc("discard:" + reason) }
func (r *countingRecorder) ConnectAttempt(outcome string)  { r.inc("connect:" + outcome) }

func (r *countingRecorder) PendingCalls(delta int) {
	r.mu.Lock()
	r.inFlight += delta
	r.mu.Unlock()
}
