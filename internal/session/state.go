// Package session implements the gateway's central state machine: the
// per-session actor that validates, policy-checks, and dispatches incoming
// envelopes, correlates pending requests and permissions, and keeps the
// session registry durable across restarts and reconnects.
package session

import (
	"sync"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
	"github.com/ronaldeddings/unified-agent/internal/protocol"
	"github.com/ronaldeddings/unified-agent/internal/queue"
)

// mailboxCapacity bounds each session's actor mailbox (spec §5: "an actor
// mailbox" is one of the licensed implementation strategies).
const mailboxCapacity = 64

// Fields is the serializable, concurrently-readable projection of a
// session's state. It is guarded by State.mu independently of the actor
// mailbox so that out-of-band readers (the heartbeat walk, the state-store
// snapshot) never need to enqueue work on a session's own actor — doing so
// from inside that actor's own goroutine would deadlock.
type Fields struct {
	ProviderSessionID *string
	MetaSessionID     *string
	Provider          protocol.Provider
	Model             *string
	PermissionMode    protocol.PermissionMode
	MaxThinkingTokens *int
	Cwd               string
	Project           string
	BrainURL          *string
	EnvVars           map[string]string
	Connected         bool
	LastSeenEpoch     int64

	// relaunchScheduled marks that the watchdog has already queued a
	// relaunch-grace timer for this disconnect; cleared on reconnect.
	relaunchScheduled bool
}

// State is the gateway's central per-session entity (spec §3,
// GatewaySessionState). Adapter, Replay, Outbound, and Correlator are
// mutated from inside this session's own actor goroutine (submitted via
// Submit). Replay, Outbound, and Correlator carry their own locks, and are
// also read outside the mailbox by hydration and the usage endpoint.
type State struct {
	SessionID        string
	GatewaySessionID string

	mu     sync.RWMutex
	fields Fields

	Adapter    adapter.Adapter
	Replay     *queue.Replay
	Outbound   *queue.Outbound
	Correlator *queue.Correlator

	mailbox     chan func()
	lifecycleMu sync.Mutex
	closed      bool
}

// newState creates a session actor and starts its run loop.
func newState(sessionID, gatewaySessionID string) *State {
	s := &State{
		SessionID:        sessionID,
		GatewaySessionID: gatewaySessionID,
		fields: Fields{
			PermissionMode: protocol.PermissionDefault,
			EnvVars:        make(map[string]string),
		},
		Replay:     queue.NewReplay(queue.DefaultReplayCap),
		Outbound:   queue.NewOutbound(),
		Correlator: queue.NewCorrelator(),
		mailbox:    make(chan func(), mailboxCapacity),
	}
	go s.run()
	return s
}

func (s *State) run() {
	for fn := range s.mailbox {
		fn()
	}
}

// Submit enqueues fn to run serialized on this session's actor goroutine,
// blocking until it completes. All router logic that touches Adapter,
// Replay, Outbound, or Correlator must go through Submit.
func (s *State) Submit(fn func()) {
	done := make(chan struct{})
	s.mailbox <- func() {
		fn()
		close(done)
	}
	<-done
}

// Read invokes fn with a consistent snapshot of Fields, safe to call from
// any goroutine including from inside a Submit closure.
func (s *State) Read(fn func(Fields)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.fields)
}

// Mutate invokes fn with a pointer to the live Fields under the write lock.
func (s *State) Mutate(fn func(*Fields)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.fields)
}

// snapshot returns a copy of Fields without taking the caller through a
// closure, for call sites that just want the value.
func (s *State) snapshot() Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields
}

// stop closes the mailbox, ending the actor goroutine once any in-flight
// Submit drains.
func (s *State) stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.mailbox)
}
