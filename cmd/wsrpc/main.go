// wsrpc issues JSON-RPC calls and follows subscriptions over a WebSocket
// connection to a node.
//
// Usage:
//
//	wsrpc --config configs/wsrpc.example.yaml call system_name
//	wsrpc --url ws://127.0.0.1:9944 call chain_getBlockHash 0
//	wsrpc subscribe --standard new-heads --count 3
//	wsrpc subscribe chain_subscribeNewHead chain_unsubscribeNewHead
package main

func main() {
	Execute()
}
