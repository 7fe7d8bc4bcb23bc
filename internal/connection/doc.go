// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single live WebSocket connection as an atomically replaced generation
//   - Resets call ids, pending calls and subscriptions on every swap
//   - Runs keepalive pings bound to one generation's lifetime and answers server pings
//   - Reassembles fragmented deliveries and routes decoded replies and events
package connection
