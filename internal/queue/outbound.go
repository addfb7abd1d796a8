// Package queue holds the three small per-session concurrency primitives
// the router coordinates over: the outbound delivery queue, the replay
// buffer, and the pending-request/pending-permission correlator.
package queue

import (
	"container/list"
	"sync"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// Outbound is a per-session FIFO of envelopes awaiting client delivery,
// deduplicated by envelope id. Modeled on the teacher's SSEMessageQueue:
// a bounded container/list.List guarded by a mutex, except the outbound
// queue is unbounded (the transport is expected to attach promptly) and
// keyed for dedup rather than eviction.
type Outbound struct {
	mu   sync.Mutex
	l    *list.List
	seen map[string]*list.Element
}

// NewOutbound creates an empty outbound queue.
func NewOutbound() *Outbound {
	return &Outbound{
		l:    list.New(),
		seen: make(map[string]*list.Element),
	}
}

type outboundEntry struct {
	id  string
	env protocol.Envelope
}

// Enqueue appends env under id. Re-enqueueing an id already present in the
// queue (i.e. not yet flushed) is a no-op, per spec §3 invariant 4.
func (o *Outbound) Enqueue(id string, env protocol.Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.seen[id]; exists {
		return
	}
	elem := o.l.PushBack(&outboundEntry{id: id, env: env})
	o.seen[id] = elem
}

// Flush drains the queue in FIFO order, invoking send for each entry. The
// "seen" set is cleared for every drained id when Flush takes the entries,
// before send runs, so a later re-enqueue of the same id is accepted again
// (per spec §4.2).
func (o *Outbound) Flush(send func(protocol.Envelope)) {
	o.mu.Lock()
	entries := make([]*outboundEntry, 0, o.l.Len())
	for e := o.l.Front(); e != nil; e = e.Next() {
		entries = append(entries, e.Value.(*outboundEntry))
	}
	o.l.Init()
	o.seen = make(map[string]*list.Element)
	o.mu.Unlock()

	for _, e := range entries {
		send(e.env)
	}
}

// Len reports the number of envelopes currently queued.
func (o *Outbound) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.l.Len()
}
