package adapter

import (
	"context"
	"encoding/json"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

var mockSubtypes = []protocol.ControlSubtype{
	protocol.SubtypeInitialize,
	protocol.SubtypeCanUseTool,
	protocol.SubtypeInterrupt,
	protocol.SubtypeSetPermissionMode,
	protocol.SubtypeSetModel,
	protocol.SubtypeSetMaxThinkingTokens,
	protocol.SubtypeMcpStatus,
	protocol.SubtypeMcpMessage,
	protocol.SubtypeMcpSetServers,
	protocol.SubtypeMcpReconnect,
	protocol.SubtypeMcpToggle,
	protocol.SubtypeRewindFiles,
	protocol.SubtypeHookCallback,
}

// Mock is a deterministic, network-free adapter used for local development
// and tests. It implements the full control-subtype surface so the router's
// happy paths can be exercised without a live backend.
type Mock struct {
	model          string
	permissionMode protocol.PermissionMode
	maxThinking    *int
}

// NewMock creates a Mock adapter.
func NewMock() *Mock {
	return &Mock{permissionMode: protocol.PermissionDefault}
}

func (m *Mock) Provider() protocol.Provider { return protocol.ProviderMock }

func (m *Mock) SupportsSdkURL() bool { return true }

func (m *Mock) SupportedControlSubtypes() []protocol.ControlSubtype { return mockSubtypes }

func (m *Mock) SupportsNativeRelay() bool { return false }

func (m *Mock) Initialize(ctx context.Context, actx Context) (*InitResult, error) {
	sid := "mock-" + actx.GatewaySessionID
	return &InitResult{ProviderSessionID: &sid, Info: map[string]interface{}{"mode": "mock"}}, nil
}

func (m *Mock) AskUser(ctx context.Context, actx Context, text string) (*AskResult, error) {
	return &AskResult{Text: "mock: " + text}, nil
}

func (m *Mock) SetModel(ctx context.Context, actx Context, model string) (map[string]interface{}, error) {
	m.model = model
	chosen := model
	if chosen == "" {
		chosen = "default"
	}
	return map[string]interface{}{"model": chosen}, nil
}

func (m *Mock) SetPermissionMode(ctx context.Context, actx Context, mode protocol.PermissionMode) (map[string]interface{}, error) {
	m.permissionMode = mode
	return map[string]interface{}{"mode": string(mode)}, nil
}

func (m *Mock) SetMaxThinkingTokens(ctx context.Context, actx Context, tokens *int) (map[string]interface{}, error) {
	m.maxThinking = tokens
	var v interface{}
	if tokens != nil {
		v = *tokens
	}
	return map[string]interface{}{"maxThinkingTokens": v}, nil
}

func (m *Mock) Interrupt(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"interrupted": true}, nil
}

func (m *Mock) CanUseTool(ctx context.Context, actx Context, req protocol.ControlRequestBody) (map[string]interface{}, error) {
	return map[string]interface{}{"behavior": "allow", "updatedInput": json.RawMessage(req.Input)}, nil
}

func (m *Mock) McpStatus(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"servers": []string{}}, nil
}

func (m *Mock) McpMessage(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"acked": true}, nil
}

func (m *Mock) McpSetServers(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"applied": true}, nil
}

func (m *Mock) McpReconnect(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return map[string]interface{}{"reconnected": true}, nil
}

func (m *Mock) McpToggle(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"toggled": true}, nil
}

func (m *Mock) RewindFiles(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"supported": true, "rewound": 0}, nil
}

func (m *Mock) HookCallback(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return map[string]interface{}{"supported": true}, nil
}

var _ Adapter = (*Mock)(nil)
