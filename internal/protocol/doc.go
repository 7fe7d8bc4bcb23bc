// Package protocol defines the JSON-RPC 2.0 envelopes exchanged over the
// socket and the error kinds surfaced to callers.
//
// Payload values are carried as json.RawMessage. The envelope never says what
// shape a result or event value has; that is resolved by the router from
// client-side bookkeeping.
package protocol
