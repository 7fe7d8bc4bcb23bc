// Package router implements the Response Router component.
//
// The Response Router:
//   - Parses only the structural envelope of a complete message
//   - Classifies it as a call reply (numeric id) or a subscription event (method + subscription id)
//   - Resolves the payload shape through injected lookups over client bookkeeping
//   - Reports unmatched and malformed messages as data, never as a failure of the receive path
package router
