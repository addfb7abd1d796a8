package queue

import (
	"sync"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// DefaultReplayCap is the suggested replay buffer bound from spec §3
// invariant 5.
const DefaultReplayCap = 1000

// Replay is a bounded, append-only, oldest-first-eviction ring buffer of
// recent envelopes used exclusively to hydrate a reconnecting client.
// Modeled on the teacher's CircularBuffer, reworked over a typed envelope
// slice instead of a byte array since the buffer holds structured
// envelopes rather than a raw stream.
type Replay struct {
	mu   sync.RWMutex
	buf  []protocol.Envelope
	cap  int
	head int // index of the oldest element
	n    int // number of live elements
}

// NewReplay creates a replay buffer bounded at capacity cap. A non-positive
// cap falls back to DefaultReplayCap.
func NewReplay(capacity int) *Replay {
	if capacity <= 0 {
		capacity = DefaultReplayCap
	}
	return &Replay{
		buf: make([]protocol.Envelope, capacity),
		cap: capacity,
	}
}

// Append adds env to the buffer, evicting the oldest entry first once the
// buffer is at capacity.
func (r *Replay) Append(env protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n < r.cap {
		idx := (r.head + r.n) % r.cap
		r.buf[idx] = env
		r.n++
		return
	}
	// Full: overwrite the oldest slot and advance head.
	r.buf[r.head] = env
	r.head = (r.head + 1) % r.cap
}

// GetAll returns the buffered envelopes in insertion order, oldest first.
func (r *Replay) GetAll() []protocol.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]protocol.Envelope, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%r.cap]
	}
	return out
}

// Len reports the number of envelopes currently held.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}
