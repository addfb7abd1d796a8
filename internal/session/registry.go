package session

import (
	"sync"

	"github.com/ronaldeddings/unified-agent/internal/statestore"
)

// Registry holds every live session keyed by sessionId.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*State)}
}

// Get returns the session for id, if it exists.
func (r *Registry) Get(sessionID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// GetOrCreate returns the existing session for id, or creates and registers
// a new one. The bool reports whether a new session was created.
func (r *Registry) GetOrCreate(sessionID, gatewaySessionID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		return s, false
	}
	s := newState(sessionID, gatewaySessionID)
	r.sessions[sessionID] = s
	return s, true
}

// Remove unregisters and stops the session for id, if present.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok {
		s.stop()
	}
}

// All returns a snapshot slice of every live session.
func (r *Registry) All() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Restore rehydrates the registry from a prior state-store snapshot,
// skipping any with an unrecognized provider (already filtered by the
// caller's KnownProvider predicate) and leaving Connected false as
// statestore.Load already enforces.
func (r *Registry) Restore(records []statestore.SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		s := newState(rec.SessionID, rec.GatewaySessionID)
		s.Mutate(func(f *Fields) {
			f.ProviderSessionID = rec.ProviderSessionID
			f.MetaSessionID = rec.MetaSessionID
			f.Provider = providerFromString(rec.Provider)
			f.Model = rec.Model
			f.PermissionMode = permissionModeFromString(rec.PermissionMode)
			f.MaxThinkingTokens = rec.MaxThinkingTokens
			f.Cwd = rec.Cwd
			f.Project = rec.Project
			f.BrainURL = rec.BrainURL
			if rec.EnvVars != nil {
				f.EnvVars = rec.EnvVars
			} else {
				f.EnvVars = make(map[string]string)
			}
			f.Connected = rec.Connected
			f.LastSeenEpoch = rec.LastSeenEpoch
		})
		r.sessions[rec.SessionID] = s
	}
}

// Snapshot projects every live session into its persisted-record shape.
func (r *Registry) Snapshot() []statestore.SessionRecord {
	r.mu.RLock()
	states := make([]*State, 0, len(r.sessions))
	for _, s := range r.sessions {
		states = append(states, s)
	}
	r.mu.RUnlock()

	out := make([]statestore.SessionRecord, 0, len(states))
	for _, s := range states {
		out = append(out, s.toRecord())
	}
	return out
}

func (s *State) toRecord() statestore.SessionRecord {
	f := s.snapshot()
	return statestore.SessionRecord{
		SessionID:         s.SessionID,
		GatewaySessionID:  s.GatewaySessionID,
		ProviderSessionID: f.ProviderSessionID,
		MetaSessionID:     f.MetaSessionID,
		Provider:          string(f.Provider),
		Model:             f.Model,
		PermissionMode:    string(f.PermissionMode),
		MaxThinkingTokens: f.MaxThinkingTokens,
		Cwd:               f.Cwd,
		Project:           f.Project,
		BrainURL:          f.BrainURL,
		EnvVars:           f.EnvVars,
		Connected:         f.Connected,
		LastSeenEpoch:     f.LastSeenEpoch,
	}
}
