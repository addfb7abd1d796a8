package session

import (
	"context"
	"time"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// Defaults for the heartbeat/watchdog timers (spec §4.8).
const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultStalenessBound    = 45 * time.Second
	DefaultRelaunchGrace     = 20 * time.Second
)

// Watchdog periodically walks the registry, marking sessions disconnected
// once they go stale and scheduling a one-shot relaunch-grace timer; if a
// session is still disconnected when that timer fires, it appends a
// system.warning{relaunch:"required"} envelope to the replay buffer so a
// reconnecting client observes it during hydration.
type Watchdog struct {
	Registry          *Registry
	HeartbeatInterval time.Duration
	StalenessBound    time.Duration
	RelaunchGrace     time.Duration
}

// NewWatchdog creates a watchdog with the spec's default timers.
func NewWatchdog(registry *Registry) *Watchdog {
	return &Watchdog{
		Registry:          registry,
		HeartbeatInterval: DefaultHeartbeatInterval,
		StalenessBound:    DefaultStalenessBound,
		RelaunchGrace:     DefaultRelaunchGrace,
	}
}

// Run walks the registry every HeartbeatInterval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	now := time.Now()
	for _, st := range w.Registry.All() {
		f := st.snapshot()
		if !f.Connected {
			continue
		}
		if now.Sub(time.Unix(f.LastSeenEpoch, 0)) <= w.StalenessBound {
			continue
		}
		if f.relaunchScheduled {
			st.Mutate(func(f *Fields) { f.Connected = false })
			continue
		}

		st.Mutate(func(f *Fields) {
			f.Connected = false
			f.relaunchScheduled = true
		})
		go w.scheduleRelaunchWarning(st)
	}
}

func (w *Watchdog) scheduleRelaunchWarning(st *State) {
	time.Sleep(w.RelaunchGrace)
	st.Submit(func() {
		f := st.snapshot()
		if f.Connected {
			return
		}
		warn := protocol.NewSystemWarning(st.SessionID, map[string]interface{}{"relaunch": "required"})
		st.Replay.Append(warn)
		st.Mutate(func(f *Fields) { f.relaunchScheduled = false })
	})
}

// HandleDetach implements the transport's "no peers remain" path (spec
// §4.9): mark the session disconnected, schedule the relaunch watchdog, and
// cancel any pending permissions with the given reason, returning the
// resulting cancellation envelopes (already appended to the replay buffer).
func (w *Watchdog) HandleDetach(st *State, reason string) []protocol.Envelope {
	var out []protocol.Envelope
	needsSchedule := false
	st.Submit(func() {
		st.Mutate(func(f *Fields) {
			f.Connected = false
			if !f.relaunchScheduled {
				f.relaunchScheduled = true
				needsSchedule = true
			}
		})
		for _, env := range st.Correlator.CancelBySession(reason) {
			st.Replay.Append(env)
			out = append(out, env)
		}
	})
	if needsSchedule {
		go w.scheduleRelaunchWarning(st)
	}
	return out
}
