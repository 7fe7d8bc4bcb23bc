package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the JSON-RPC version sent on every request.
const Version = "2.0"

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an outbound call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Envelope is the structural view of any inbound message. Only the fields
// needed to classify it are parsed; payloads stay raw.
type Envelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
	Params *EventParams    `json:"params,omitempty"`
}

// EventParams is the params object of a subscription notification.
type EventParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// ErrorObject is the error member of a reply.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EncodeRequest serializes a call. Nil params are sent as an empty array.
func EncodeRequest(id uint64, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	data, err := json.Marshal(Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, &EncodeError{Method: method, Err: err}
	}
	return data, nil
}

// ParseCallID reads a reply id. Only non-negative integers are valid because
// the client never sends anything else.
func ParseCallID(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %s: %w", raw, err)
	}
	return id, nil
}

// SubscriptionID is a server-assigned subscription identifier. Servers send
// either a JSON number or a JSON string; both normalise to the same text.
type SubscriptionID string

// ParseSubscriptionID normalises a raw JSON subscription id.
func ParseSubscriptionID(raw json.RawMessage) (SubscriptionID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing subscription id")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid subscription id: %w", err)
		}
		if s == "" {
			return "", errors.New("empty subscription id")
		}
		return SubscriptionID(s), nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return "", fmt.Errorf("invalid subscription id %s: %w", raw, err)
	}
	return SubscriptionID(n.String()), nil
}

// IssuedID is a subscription id as the server sent it. ID is the
// normalised key used to route events; Raw is echoed back verbatim when
// unsubscribing.
type IssuedID struct {
	ID  SubscriptionID
	Raw json.RawMessage
}

// ParseIssuedID reads a subscribe result, keeping the original encoding.
func ParseIssuedID(raw json.RawMessage) (IssuedID, error) {
	id, err := ParseSubscriptionID(raw)
	if err != nil {
		return IssuedID{}, err
	}
	return IssuedID{ID: id, Raw: bytes.Clone(bytes.TrimSpace(raw))}, nil
}

// Param returns the id for an unsubscribe call's params.
func (id IssuedID) Param() json.RawMessage {
	return id.Raw
}
