package router

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/rickgao/wsrpc/internal/protocol"
)

// Shape describes the expected type of a result or event value. The wire
// carries no type information, so every pending call and subscription holds
// one.
type Shape interface {
	Decode(raw json.RawMessage) (any, error)
	String() string
}

type jsonShape[T any] struct{}

// JSON returns a Shape that unmarshals into a T.
func JSON[T any]() Shape {
	return jsonShape[T]{}
}

func (jsonShape[T]) Decode(raw json.RawMessage) (any, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (jsonShape[T]) String() string {
	return reflect.TypeFor[T]().String()
}

type rawShape struct{}

// Raw returns a Shape that keeps the value as json.RawMessage.
func Raw() Shape {
	return rawShape{}
}

func (rawShape) Decode(raw json.RawMessage) (any, error) {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

func (rawShape) String() string { return "json.RawMessage" }

type subscriptionIDShape struct{}

// SubscriptionID returns the Shape of a subscribe call's result. Values
// are protocol.IssuedID.
func SubscriptionID() Shape {
	return subscriptionIDShape{}
}

func (subscriptionIDShape) Decode(raw json.RawMessage) (any, error) {
	id, err := protocol.ParseIssuedID(raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe result: %w", err)
	}
	return id, nil
}

func (subscriptionIDShape) String() string { return "protocol.IssuedID" }
