// Package assembler reassembles fragmented socket deliveries into complete
// messages. Partial state is keyed by connection generation so a sequence
// started on a superseded connection can never merge with a newer one.
package assembler

import "sync"

// Assembler holds in-progress fragment sequences per generation.
type Assembler struct {
	mu      sync.Mutex
	partial map[uint64][]byte
}

// New creates an empty Assembler.
func New() *Assembler {
	return &Assembler{partial: make(map[uint64][]byte)}
}

// Append accumulates a non-final fragment for gen.
func (a *Assembler) Append(gen uint64, fragment []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.partial[gen] = append(a.partial[gen], fragment...)
}

// Complete appends the terminal fragment and returns the whole message,
// clearing gen's buffer. A single-frame message is returned as is.
func (a *Assembler) Complete(gen uint64, fragment []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.partial[gen]
	if !ok {
		return fragment
	}
	delete(a.partial, gen)
	return append(buf, fragment...)
}

// Retain drops every buffer that does not belong to gen.
func (a *Assembler) Retain(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for g := range a.partial {
		if g != gen {
			delete(a.partial, g)
		}
	}
}

// Discard drops gen's buffer.
func (a *Assembler) Discard(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.partial, gen)
}

// Pending reports how many generations have a sequence in progress.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.partial)
}
