// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Calls issued and replies dispatched by outcome
//   - Subscription events delivered or dropped
//   - Frames discarded (unmatched, malformed, stale generation)
//   - Connect attempts and pending call count
package metrics
