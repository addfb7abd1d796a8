package adapter

import (
	"context"
	"encoding/json"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// geminiSubtypes additionally omits set_max_thinking_tokens: Gemini has no
// exposed thinking-budget knob at the CLI layer.
var geminiSubtypes = []protocol.ControlSubtype{
	protocol.SubtypeInitialize,
	protocol.SubtypeCanUseTool,
	protocol.SubtypeInterrupt,
	protocol.SubtypeSetPermissionMode,
	protocol.SubtypeSetModel,
	protocol.SubtypeMcpStatus,
	protocol.SubtypeMcpMessage,
	protocol.SubtypeMcpSetServers,
	protocol.SubtypeMcpToggle,
	protocol.SubtypeHookCallback,
}

// Gemini is an in-process (non-native-relay) adapter standing in for the
// Gemini CLI backend.
type Gemini struct {
	model          string
	permissionMode protocol.PermissionMode
}

// NewGemini creates a Gemini adapter.
func NewGemini() *Gemini {
	return &Gemini{permissionMode: protocol.PermissionDefault}
}

func (g *Gemini) Provider() protocol.Provider { return protocol.ProviderGemini }

func (g *Gemini) SupportsSdkURL() bool { return false }

func (g *Gemini) SupportedControlSubtypes() []protocol.ControlSubtype { return geminiSubtypes }

func (g *Gemini) SupportsNativeRelay() bool { return false }

func (g *Gemini) Initialize(ctx context.Context, actx Context) (*InitResult, error) {
	sid := "gemini-" + actx.GatewaySessionID
	return &InitResult{ProviderSessionID: &sid}, nil
}

func (g *Gemini) AskUser(ctx context.Context, actx Context, text string) (*AskResult, error) {
	return &AskResult{Text: "gemini: " + text}, nil
}

func (g *Gemini) SetModel(ctx context.Context, actx Context, model string) (map[string]interface{}, error) {
	g.model = model
	chosen := model
	if chosen == "" {
		chosen = "default"
	}
	return map[string]interface{}{"model": chosen}, nil
}

func (g *Gemini) SetPermissionMode(ctx context.Context, actx Context, mode protocol.PermissionMode) (map[string]interface{}, error) {
	g.permissionMode = mode
	return map[string]interface{}{"mode": string(mode)}, nil
}

func (g *Gemini) Interrupt(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"interrupted": true}, nil
}

func (g *Gemini) CanUseTool(ctx context.Context, actx Context, req protocol.ControlRequestBody) (map[string]interface{}, error) {
	return map[string]interface{}{"behavior": "allow", "updatedInput": json.RawMessage(req.Input)}, nil
}

func (g *Gemini) McpStatus(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"servers": []string{}}, nil
}

func (g *Gemini) McpMessage(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"acked": true}, nil
}

func (g *Gemini) McpSetServers(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"applied": true}, nil
}

func (g *Gemini) McpToggle(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"toggled": true}, nil
}

func (g *Gemini) HookCallback(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"supported": true}, nil
}

var _ Adapter = (*Gemini)(nil)
