package adapter

import (
	"context"
	"encoding/json"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// codexSubtypes omits rewind_files and mcp_reconnect: Codex has no
// checkpoint/rewind concept and reconnects its MCP servers implicitly on
// every turn rather than on an explicit subtype.
var codexSubtypes = []protocol.ControlSubtype{
	protocol.SubtypeInitialize,
	protocol.SubtypeCanUseTool,
	protocol.SubtypeInterrupt,
	protocol.SubtypeSetPermissionMode,
	protocol.SubtypeSetModel,
	protocol.SubtypeSetMaxThinkingTokens,
	protocol.SubtypeMcpStatus,
	protocol.SubtypeMcpMessage,
	protocol.SubtypeMcpSetServers,
	protocol.SubtypeMcpToggle,
	protocol.SubtypeHookCallback,
}

// Codex is an in-process (non-native-relay) adapter standing in for the
// Codex CLI backend.
type Codex struct {
	model          string
	permissionMode protocol.PermissionMode
}

// NewCodex creates a Codex adapter.
func NewCodex() *Codex {
	return &Codex{permissionMode: protocol.PermissionDefault}
}

func (c *Codex) Provider() protocol.Provider { return protocol.ProviderCodex }

func (c *Codex) SupportsSdkURL() bool { return true }

func (c *Codex) SupportedControlSubtypes() []protocol.ControlSubtype { return codexSubtypes }

func (c *Codex) SupportsNativeRelay() bool { return false }

func (c *Codex) Initialize(ctx context.Context, actx Context) (*InitResult, error) {
	sid := "codex-" + actx.GatewaySessionID
	return &InitResult{ProviderSessionID: &sid}, nil
}

func (c *Codex) AskUser(ctx context.Context, actx Context, text string) (*AskResult, error) {
	return &AskResult{Text: "codex: " + text}, nil
}

func (c *Codex) SetModel(ctx context.Context, actx Context, model string) (map[string]interface{}, error) {
	c.model = model
	chosen := model
	if chosen == "" {
		chosen = "default"
	}
	return map[string]interface{}{"model": chosen}, nil
}

func (c *Codex) SetPermissionMode(ctx context.Context, actx Context, mode protocol.PermissionMode) (map[string]interface{}, error) {
	c.permissionMode = mode
	return map[string]interface{}{"mode": string(mode)}, nil
}

func (c *Codex) SetMaxThinkingTokens(ctx context.Context, actx Context, tokens *int) (map[string]interface{}, error) {
	var v interface{}
	if tokens != nil {
		v = *tokens
	}
	return map[string]interface{}{"maxThinkingTokens": v}, nil
}

func (c *Codex) Interrupt(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"interrupted": true}, nil
}

func (c *Codex) CanUseTool(ctx context.Context, actx Context, req protocol.ControlRequestBody) (map[string]interface{}, error) {
	return map[string]interface{}{"behavior": "allow", "updatedInput": json.RawMessage(req.Input)}, nil
}

func (c *Codex) McpStatus(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"servers": []string{}}, nil
}

func (c *Codex) McpMessage(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"acked": true}, nil
}

func (c *Codex) McpSetServers(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"applied": true}, nil
}

func (c *Codex) McpToggle(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"toggled": true}, nil
}

func (c *Codex) HookCallback(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"supported": true}, nil
}

var _ Adapter = (*Codex)(nil)
