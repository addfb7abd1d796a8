package queue

import (
	"sync"
	"time"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// PendingRequest is a dispatched-but-not-yet-resolved control request.
type PendingRequest struct {
	RequestID string
	Subtype   protocol.ControlSubtype
	StartedAt time.Time
}

// PendingPermission is an in-flight can_use_tool request awaiting a
// decision.
type PendingPermission struct {
	RequestID string
	SessionID string
	CreatedAt time.Time
	ToolName  string
	ToolUseID string
	Request   protocol.ControlRequestBody
}

// Correlator tracks outstanding request ids for one session: the general
// pendingRequests table and the pendingPermissions sub-table for
// can_use_tool specifically. Every entry carries the owning session's id
// (spec §3 invariant 3); cross-session correlation never occurs because a
// Correlator is scoped to exactly one session.
type Correlator struct {
	mu          sync.Mutex
	requests    map[string]*PendingRequest
	permissions map[string]*PendingPermission
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		requests:    make(map[string]*PendingRequest),
		permissions: make(map[string]*PendingPermission),
	}
}

// StartRequest registers a dispatched control request.
func (c *Correlator) StartRequest(requestID string, subtype protocol.ControlSubtype) *PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr := &PendingRequest{RequestID: requestID, Subtype: subtype, StartedAt: time.Now()}
	c.requests[requestID] = pr
	return pr
}

// ResolveRequest removes requestID from the pending table and reports
// whether it was present (i.e. whether this is the terminal resolution for
// that id, per spec §5 ordering guarantee 2).
func (c *Correlator) ResolveRequest(requestID string) (*PendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr, ok := c.requests[requestID]
	if ok {
		delete(c.requests, requestID)
	}
	return pr, ok
}

// IsPending reports whether requestID is still awaiting resolution.
func (c *Correlator) IsPending(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.requests[requestID]
	return ok
}

// PendingRequestCount returns the number of outstanding control requests.
func (c *Correlator) PendingRequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// AddPermission registers an in-flight can_use_tool request.
func (c *Correlator) AddPermission(sessionID, requestID, toolName, toolUseID string, req protocol.ControlRequestBody) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissions[requestID] = &PendingPermission{
		RequestID: requestID,
		SessionID: sessionID,
		CreatedAt: time.Now(),
		ToolName:  toolName,
		ToolUseID: toolUseID,
		Request:   req,
	}
}

// ResolvePermission removes requestID from the pending-permissions table.
func (c *Correlator) ResolvePermission(requestID string) (*PendingPermission, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pp, ok := c.permissions[requestID]
	if ok {
		delete(c.permissions, requestID)
	}
	return pp, ok
}

// PendingPermissions returns a snapshot of all outstanding permissions, used
// by hydration (spec §4.10 item 3).
func (c *Correlator) PendingPermissions() []*PendingPermission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*PendingPermission, 0, len(c.permissions))
	for _, pp := range c.permissions {
		out = append(out, pp)
	}
	return out
}

// PendingPermissionCount returns the number of outstanding permissions.
func (c *Correlator) PendingPermissionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.permissions)
}

// CancelBySession drains every pending permission for this session,
// returning one PermissionCancelledEnvelope per drained entry (spec §4.2:
// "cancelBySession(reason) drains all entries for a session, emitting one
// permission_cancelled envelope per entry").
func (c *Correlator) CancelBySession(reason string) []*protocol.PermissionCancelledEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*protocol.PermissionCancelledEnvelope, 0, len(c.permissions))
	for id, pp := range c.permissions {
		out = append(out, protocol.NewPermissionCancelled(pp.SessionID, id, reason))
		delete(c.permissions, id)
	}
	return out
}
