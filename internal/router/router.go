package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/rickgao/wsrpc/internal/protocol"
)

// Router decodes complete messages into replies and events.
type Router struct {
	calls  CallLookup
	events EventLookup
	logger *slog.Logger

	received  atomic.Int64
	replies   atomic.Int64
	evts      atomic.Int64
	unmatched atomic.Int64
	invalid   atomic.Int64
}

// New creates a Router over the given lookups.
func New(calls CallLookup, events EventLookup, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		calls:  calls,
		events: events,
		logger: logger,
	}
}

// Decode classifies and decodes one message. It never panics and never
// returns an error: failures are reported through Message.Kind.
func (r *Router) Decode(data []byte) Message {
	r.received.Add(1)

	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return r.reject(&protocol.DecodeError{Err: err})
	}

	if env.Method != "" && env.Params != nil && len(env.Params.Subscription) > 0 {
		return r.decodeEvent(&env)
	}
	if len(env.ID) > 0 {
		return r.decodeReply(&env)
	}
	return r.reject(&protocol.DecodeError{Err: errors.New("neither reply nor subscription event")})
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		Replies:          r.replies.Load(),
		Events:           r.evts.Load(),
		Unmatched:        r.unmatched.Load(),
		Invalid:          r.invalid.Load(),
	}
}

func (r *Router) decodeReply(env *protocol.Envelope) Message {
	id, err := protocol.ParseCallID(env.ID)
	if err != nil {
		return r.reject(&protocol.DecodeError{Err: err})
	}

	shape, ok := r.calls(id)
	if !ok {
		return r.miss(fmt.Errorf("no pending call %d", id))
	}

	reply := &Reply{ID: id}
	switch {
	case env.Error != nil:
		reply.Err = protocol.NewServerError(env.Error)
	default:
		v, err := shape.Decode(env.Result)
		if err != nil {
			reply.Err = &protocol.DecodeError{Err: fmt.Errorf("result of call %d as %s: %w", id, shape, err)}
		} else {
			reply.Result = v
		}
	}

	r.replies.Add(1)
	return Message{Kind: KindReply, Reply: reply}
}

func (r *Router) decodeEvent(env *protocol.Envelope) Message {
	sid, err := protocol.ParseSubscriptionID(env.Params.Subscription)
	if err != nil {
		return r.reject(&protocol.DecodeError{Err: err})
	}

	shape, ok := r.events(sid)
	if !ok {
		return r.miss(fmt.Errorf("no active subscription %s", sid))
	}

	v, err := shape.Decode(env.Params.Result)
	if err != nil {
		// One bad event must not end the subscription; it is dropped.
		return r.reject(&protocol.DecodeError{Err: fmt.Errorf("event for %s as %s: %w", sid, shape, err)})
	}

	r.evts.Add(1)
	return Message{
		Kind: KindEvent,
		Event: &Event{
			Subscription: sid,
			Method:       env.Method,
			Value:        v,
		},
	}
}

func (r *Router) reject(err error) Message {
	r.invalid.Add(1)
	r.logger.Debug("discarding malformed message", "error", err)
	return Message{Kind: KindInvalid, Err: err}
}

func (r *Router) miss(err error) Message {
	r.unmatched.Add(1)
	r.logger.Debug("discarding unmatched message", "reason", err)
	return Message{Kind: KindUnmatched, Err: err}
}
