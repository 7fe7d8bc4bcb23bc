// Package calls tracks in-flight calls on one connection generation.
//
// Entries are registered before their request is written and removed exactly
// once: by the matching reply, by an abandoning caller, or en masse when the
// generation ends.
package calls
