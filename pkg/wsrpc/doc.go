// Package wsrpc is a JSON-RPC 2.0 client that multiplexes many concurrent
// calls and subscriptions over one WebSocket connection.
//
// Every operation returns a Future immediately:
//
//	client, err := wsrpc.New(wsrpc.WithURL("ws://127.0.0.1:9944"))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//
//	name, err := wsrpc.CallAs[string](client, "system_name").Wait(ctx)
//
//	sub, err := client.Subscribe(wsrpc.NewHeads()).Wait(ctx)
//	for {
//		ev, err := sub.Next(ctx)
//		...
//	}
//
// Reconnecting with Connect fails every pending call and ends every
// subscription of the previous connection; nothing is resent.
package wsrpc
