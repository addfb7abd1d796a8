// Package eventlog is the gateway's canonical, per-session record of
// everything that happened: control requests and responses, user turns,
// assistant replies, memory injections, transport transitions, and errors.
// Every mutation is durable twice over — once as an append-only JSONL file
// and once in an indexed store that supports recent-event queries.
package eventlog

import "encoding/json"

// Kind identifies the category of one canonical log entry.
type Kind string

const (
	KindControlRequest      Kind = "control_request"
	KindControlResponse     Kind = "control_response"
	KindUserTurn            Kind = "user_turn"
	KindAssistantReply      Kind = "assistant_reply"
	KindMemoryInjection     Kind = "memory_injection"
	KindTransportTransition Kind = "transport_transition"
	KindError               Kind = "error"
)

// Event is one canonical log entry, written as a single JSON object per
// line to a session's JSONL file and as one row in the indexed store.
type Event struct {
	MetaSessionID  string          `json:"metaSessionId"`
	CreatedAtEpoch int64           `json:"createdAtEpoch"`
	Kind           Kind            `json:"type"`
	Provider       string          `json:"provider,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	Subtype        string          `json:"subtype,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}
