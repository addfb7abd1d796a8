// Package adapter translates the gateway's provider-neutral control and
// message surface into the wire dialect of one upstream agent CLI.
// Every adapter advertises a fixed capability set; the router only ever
// calls the methods a given adapter has declared support for.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// Context is the per-call context an adapter method receives, carrying
// everything about the owning session it might need.
type Context struct {
	MetaSessionID     string
	GatewaySessionID  string
	ProviderSessionID *string
	Project           string
	Cwd               string
	Provider          protocol.Provider
	Model             *string
	BrainURL          *string
	PermissionMode    protocol.PermissionMode
	MaxThinkingTokens *int
}

// InitResult is returned by Initialize.
type InitResult struct {
	ProviderSessionID *string
	Info              map[string]interface{}
}

// AskResult is returned by AskUser.
type AskResult struct {
	Text              string
	ProviderSessionID *string
	Raw               json.RawMessage
}

// Adapter is the minimal contract every provider backend must satisfy:
// identity, an advertised capability set, and the two calls every session
// needs regardless of provider.
type Adapter interface {
	// Provider returns this adapter's provider identity.
	Provider() protocol.Provider

	// SupportsSdkURL reports whether this adapter accepts a brain/SDK URL.
	SupportsSdkURL() bool

	// SupportedControlSubtypes lists the control subtypes this adapter
	// implements. The router treats any subtype absent from this set as
	// unsupported regardless of whether the adapter happens to satisfy
	// the corresponding optional interface below.
	SupportedControlSubtypes() []protocol.ControlSubtype

	// SupportsNativeRelay reports whether this adapter drives its backend
	// through an out-of-band relay session (spec §4.6's "one adapter —
	// the native-relay-capable one").
	SupportsNativeRelay() bool

	// Initialize establishes (or re-establishes) the provider session.
	Initialize(ctx context.Context, actx Context) (*InitResult, error)

	// AskUser sends one user turn and returns the synthesized reply.
	AskUser(ctx context.Context, actx Context, text string) (*AskResult, error)
}

// Supports reports whether subtype is in a's advertised capability set.
func Supports(a Adapter, subtype protocol.ControlSubtype) bool {
	for _, s := range a.SupportedControlSubtypes() {
		if s == subtype {
			return true
		}
	}
	return false
}

// Optional per-subtype interfaces. An adapter implements only the ones it
// supports; SupportedControlSubtypes is the source of truth the router
// consults, these interfaces are how it then reaches the implementation.

type ModelSetter interface {
	SetModel(ctx context.Context, actx Context, model string) (map[string]interface{}, error)
}

type PermissionModeSetter interface {
	SetPermissionMode(ctx context.Context, actx Context, mode protocol.PermissionMode) (map[string]interface{}, error)
}

type MaxThinkingTokensSetter interface {
	SetMaxThinkingTokens(ctx context.Context, actx Context, tokens *int) (map[string]interface{}, error)
}

type Interrupter interface {
	Interrupt(ctx context.Context, actx Context) (map[string]interface{}, error)
}

type CanUseToolHandler interface {
	CanUseTool(ctx context.Context, actx Context, req protocol.ControlRequestBody) (map[string]interface{}, error)
}

type McpStatusProvider interface {
	McpStatus(ctx context.Context, actx Context) (map[string]interface{}, error)
}

type McpMessenger interface {
	McpMessage(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error)
}

type McpServerSetter interface {
	McpSetServers(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error)
}

type McpReconnector interface {
	McpReconnect(ctx context.Context, actx Context) (map[string]interface{}, error)
}

type McpToggler interface {
	McpToggle(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error)
}

type FileRewinder interface {
	RewindFiles(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error)
}

type HookCallbackHandler interface {
	HookCallback(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error)
}
