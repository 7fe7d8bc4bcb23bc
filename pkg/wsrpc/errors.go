package wsrpc

import "github.com/rickgao/wsrpc/internal/protocol"

// Error kinds reported through futures and subscriptions.
var (
	ErrConnectionClosed      = protocol.ErrConnectionClosed
	ErrNotConnected          = protocol.ErrNotConnected
	ErrAlreadyClosed         = protocol.ErrAlreadyClosed
	ErrSubscriptionCancelled = protocol.ErrSubscriptionCancelled
)

type (
	ConnectError = protocol.ConnectError
	EncodeError  = protocol.EncodeError
	ServerError  = protocol.ServerError
	DecodeError  = protocol.DecodeError
)
