package router

import "github.com/rickgao/wsrpc/internal/protocol"

// Kind classifies a decoded message.
type Kind int

const (
	KindInvalid Kind = iota
	KindReply
	KindEvent
	KindUnmatched
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindEvent:
		return "event"
	case KindUnmatched:
		return "unmatched"
	default:
		return "invalid"
	}
}

// Message is the outcome of decoding one complete inbound message.
// Exactly one of Reply and Event is set for KindReply and KindEvent.
type Message struct {
	Kind  Kind
	Reply *Reply
	Event *Event

	// Err explains KindInvalid and KindUnmatched outcomes.
	Err error
}

// Reply is the response to a call. Err is a *protocol.ServerError when the
// server answered with an error envelope, or a *protocol.DecodeError when the
// result did not fit the expected shape.
type Reply struct {
	ID     uint64
	Result any
	Err    error
}

// Event is a notification addressed to a subscription.
type Event struct {
	Subscription protocol.SubscriptionID
	Method       string
	Value        any
}

// CallLookup resolves the expected result shape of a pending call.
type CallLookup func(id uint64) (Shape, bool)

// EventLookup resolves the expected value shape of an active subscription.
type EventLookup func(id protocol.SubscriptionID) (Shape, bool)

// RouterStats contains decode statistics.
type RouterStats struct {
	MessagesReceived int64
	Replies          int64
	Events           int64
	Unmatched        int64
	Invalid          int64
}
