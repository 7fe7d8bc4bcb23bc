package protocol

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrConnectionClosed      = errors.New("connection closed")
	ErrNotConnected          = errors.New("not connected")
	ErrAlreadyClosed         = errors.New("already closed")
	ErrSubscriptionCancelled = errors.New("subscription cancelled")
)

// ConnectError reports a failed handshake or open.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// EncodeError reports a request that could not be serialized. It only ever
// fails the call it belongs to.
type EncodeError struct {
	Method string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Method, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ServerError is an error envelope returned for a call.
type ServerError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DecodeError reports a message or payload that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewServerError converts a decoded error object.
func NewServerError(obj *ErrorObject) *ServerError {
	return &ServerError{Code: obj.Code, Message: obj.Message, Data: obj.Data}
}
