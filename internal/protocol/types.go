// Package protocol defines the wire envelope codec shared by every client
// attachment: the discriminated envelope types, control-request subtypes,
// and the canonical error taxonomy.
package protocol

import "encoding/json"

// EnvelopeType discriminates the wire envelope.
type EnvelopeType string

// Recognized envelope types. Anything else is either tolerated (unknown,
// dropped silently by the router) or rejected (known type, invalid shape).
const (
	TypeControlRequest       EnvelopeType = "control_request"
	TypeControlResponse      EnvelopeType = "control_response"
	TypeControlCancelRequest EnvelopeType = "control_cancel_request"
	TypeUser                 EnvelopeType = "user"
	TypeAssistant            EnvelopeType = "assistant"
	TypeSystem               EnvelopeType = "system"
	TypeTransportState       EnvelopeType = "transport_state"
	TypePermissionCancelled  EnvelopeType = "permission_cancelled"
	TypeKeepAlive            EnvelopeType = "keep_alive"
	TypeUpdateEnvVars        EnvelopeType = "update_environment_variables"
	TypeError                EnvelopeType = "error"
)

// Provider identifies a backend agent implementation.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderCodex  Provider = "codex"
	ProviderGemini Provider = "gemini"
	ProviderMock   Provider = "mock"
)

// IsValid reports whether p is one of the four recognized providers.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderClaude, ProviderCodex, ProviderGemini, ProviderMock:
		return true
	default:
		return false
	}
}

// PermissionMode controls how the backend treats tool approvals.
type PermissionMode string

const (
	PermissionDefault           PermissionMode = "default"
	PermissionAcceptEdits       PermissionMode = "acceptEdits"
	PermissionPlan              PermissionMode = "plan"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
)

// IsValid reports whether m is one of the four enumerated permission modes.
func (m PermissionMode) IsValid() bool {
	switch m {
	case PermissionDefault, PermissionAcceptEdits, PermissionPlan, PermissionBypassPermissions:
		return true
	default:
		return false
	}
}

// ControlSubtype discriminates a control_request's request.subtype.
type ControlSubtype string

const (
	SubtypeInitialize           ControlSubtype = "initialize"
	SubtypeCanUseTool           ControlSubtype = "can_use_tool"
	SubtypeInterrupt            ControlSubtype = "interrupt"
	SubtypeSetPermissionMode    ControlSubtype = "set_permission_mode"
	SubtypeSetModel             ControlSubtype = "set_model"
	SubtypeSetMaxThinkingTokens ControlSubtype = "set_max_thinking_tokens"
	SubtypeMcpStatus            ControlSubtype = "mcp_status"
	SubtypeMcpMessage           ControlSubtype = "mcp_message"
	SubtypeMcpSetServers        ControlSubtype = "mcp_set_servers"
	SubtypeMcpReconnect         ControlSubtype = "mcp_reconnect"
	SubtypeMcpToggle            ControlSubtype = "mcp_toggle"
	SubtypeRewindFiles          ControlSubtype = "rewind_files"
	SubtypeHookCallback         ControlSubtype = "hook_callback"
)

// validSubtypes is the closed set from spec §4.1 item 2.
var validSubtypes = map[ControlSubtype]bool{
	SubtypeInitialize:           true,
	SubtypeCanUseTool:           true,
	SubtypeInterrupt:            true,
	SubtypeSetPermissionMode:    true,
	SubtypeSetModel:             true,
	SubtypeSetMaxThinkingTokens: true,
	SubtypeMcpStatus:            true,
	SubtypeMcpMessage:           true,
	SubtypeMcpSetServers:        true,
	SubtypeMcpReconnect:         true,
	SubtypeMcpToggle:            true,
	SubtypeRewindFiles:          true,
	SubtypeHookCallback:         true,
}

// IsValid reports whether s belongs to the closed control-subtype set.
func (s ControlSubtype) IsValid() bool {
	return validSubtypes[s]
}

// ResponseSubtype discriminates a control_response's response.subtype.
type ResponseSubtype string

const (
	ResponseSuccess ResponseSubtype = "success"
	ResponseError   ResponseSubtype = "error"
)

// Envelope is the wire unit: every variant satisfies this via embedding the
// Type field and exposing it through Kind().
type Envelope interface {
	Kind() EnvelopeType
}

// ControlRequestBody is the nested "request" object of a control_request.
type ControlRequestBody struct {
	Subtype ControlSubtype `json:"subtype"`

	// Common per-subtype fields, populated as applicable; unused ones are
	// simply omitted on the wire.
	Provider          Provider        `json:"provider,omitempty"`
	Model             string          `json:"model,omitempty"`
	Mode              PermissionMode  `json:"mode,omitempty"`
	MaxThinkingTokens *int            `json:"maxThinkingTokens,omitempty"`
	ToolName          string          `json:"tool_name,omitempty"`
	ToolUseID         string          `json:"tool_use_id,omitempty"`
	Input             json.RawMessage `json:"input,omitempty"`
	UpdatedInput      json.RawMessage `json:"updatedInput,omitempty"`

	// Extra carries subtype-specific fields the router does not interpret
	// (mcp_*, rewind_files, hook_callback) straight through to the adapter.
	Extra json.RawMessage `json:"-"`
}

// ControlRequestEnvelope is a client-initiated RPC correlated by RequestID.
type ControlRequestEnvelope struct {
	Type      EnvelopeType       `json:"type"`
	SessionID string             `json:"session_id,omitempty"`
	RequestID string             `json:"request_id"`
	Request   ControlRequestBody `json:"request"`
}

func (e *ControlRequestEnvelope) Kind() EnvelopeType { return TypeControlRequest }

// ControlResponseBody is the nested "response" object of a control_response.
type ControlResponseBody struct {
	Subtype   ResponseSubtype        `json:"subtype"`
	RequestID string                 `json:"request_id"`
	Response  map[string]interface{} `json:"response,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
}

// ControlResponseEnvelope is the terminal reply to a ControlRequestEnvelope.
type ControlResponseEnvelope struct {
	Type     EnvelopeType        `json:"type"`
	Response ControlResponseBody `json:"response"`
}

func (e *ControlResponseEnvelope) Kind() EnvelopeType { return TypeControlResponse }

// ControlCancelRequestEnvelope cancels an outstanding control request.
type ControlCancelRequestEnvelope struct {
	Type      EnvelopeType `json:"type"`
	RequestID string       `json:"request_id"`
}

func (e *ControlCancelRequestEnvelope) Kind() EnvelopeType { return TypeControlCancelRequest }

// UserMessage is the nested "message" object of a user envelope.
type UserMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserEnvelope carries a free-form user turn.
type UserEnvelope struct {
	Type      EnvelopeType `json:"type"`
	SessionID string       `json:"session_id"`
	Message   UserMessage  `json:"message"`
}

func (e *UserEnvelope) Kind() EnvelopeType { return TypeUser }

// AssistantEvent is the nested "event" object of an assistant envelope.
type AssistantEvent struct {
	Subtype string `json:"subtype"`
	Text    string `json:"text,omitempty"`
}

// AssistantEnvelope carries a synthesized assistant reply.
type AssistantEnvelope struct {
	Type      EnvelopeType   `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Event     AssistantEvent `json:"event"`
}

func (e *AssistantEnvelope) Kind() EnvelopeType { return TypeAssistant }

// SystemEvent is the nested "event" object of a system envelope.
type SystemEvent struct {
	Subtype string                 `json:"subtype"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SystemEnvelope carries an operator/status notice.
type SystemEnvelope struct {
	Type      EnvelopeType `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	Event     SystemEvent  `json:"event"`
}

func (e *SystemEnvelope) Kind() EnvelopeType { return TypeSystem }

// TransportStateEnvelope announces a transport/backend lifecycle
// transition.
type TransportStateEnvelope struct {
	Type         EnvelopeType `json:"type"`
	SessionID    string       `json:"session_id,omitempty"`
	State        string       `json:"state"`
	Provider     Provider     `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
}

func (e *TransportStateEnvelope) Kind() EnvelopeType { return TypeTransportState }

// PermissionCancelledEnvelope announces that a pending can_use_tool request
// was resolved without a decision from the adapter.
type PermissionCancelledEnvelope struct {
	Type      EnvelopeType `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
	RequestID string       `json:"request_id"`
	Reason    string       `json:"reason"`
}

func (e *PermissionCancelledEnvelope) Kind() EnvelopeType { return TypePermissionCancelled }

// KeepAliveEnvelope is a liveness ping.
type KeepAliveEnvelope struct {
	Type      EnvelopeType `json:"type"`
	SessionID string       `json:"session_id,omitempty"`
}

func (e *KeepAliveEnvelope) Kind() EnvelopeType { return TypeKeepAlive }

// UpdateEnvVarsEnvelope merges variables into a session's environment.
type UpdateEnvVarsEnvelope struct {
	Type      EnvelopeType      `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Variables map[string]string `json:"variables"`
}

func (e *UpdateEnvVarsEnvelope) Kind() EnvelopeType { return TypeUpdateEnvVars }

// ErrorEnvelope is a top-level (non-control) failure notice.
type ErrorEnvelope struct {
	Type    EnvelopeType `json:"type"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

func (e *ErrorEnvelope) Kind() EnvelopeType { return TypeError }
