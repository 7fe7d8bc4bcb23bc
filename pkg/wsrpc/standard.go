package wsrpc

import "encoding/json"

// NewHeads describes the new block header subscription.
func NewHeads() SubscribeCall {
	return NewSubscribeCall[json.RawMessage]("chain_subscribeNewHead", "chain_unsubscribeNewHead")
}

// FinalizedHeads describes the finalized block header subscription.
func FinalizedHeads() SubscribeCall {
	return NewSubscribeCall[json.RawMessage]("chain_subscribeFinalizedHeads", "chain_unsubscribeFinalizedHeads")
}

// RuntimeVersion describes the runtime version subscription.
func RuntimeVersion() SubscribeCall {
	return NewSubscribeCall[json.RawMessage]("chain_subscribeRuntimeVersion", "chain_unsubscribeRuntimeVersion")
}
