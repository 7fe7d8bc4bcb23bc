// Package subscription implements the Subscription Table component.
//
// A subscription is created Pending under a client-local uuid while its
// subscribe call is in flight, promoted to Active under the server-assigned
// id when the call's reply is dispatched, and ends Cancelled on explicit
// cancellation or when its connection generation is cleared.
//
// Events for an id that is not Active are dropped. This assumes the server
// acknowledges a subscribe call before it emits events for it.
package subscription
