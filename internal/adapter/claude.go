package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// DefaultRelayTimeout is the hard per-turn bound before the native relay's
// child process is torn down (spec §4.6).
const DefaultRelayTimeout = 45 * time.Second

var claudeSubtypes = []protocol.ControlSubtype{
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

// relayFrame is the wire shape spoken between the gateway and a relayed
// child process. It reuses the gateway's own envelope dialect: the child
// both receives control requests and, for can_use_tool/mcp_* turns, issues
// them back upstream before yielding its terminal result.
type relayFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Request   *relayRequest   `json:"request,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

type relayRequest struct {
	Subtype protocol.ControlSubtype `json:"subtype"`
	Input   json.RawMessage         `json:"input,omitempty"`
}

// Claude is the one adapter that declares native-relay support: in addition
// to the in-process methods every adapter offers, it drives a secondary,
// out-of-band session against a child process obtained from a RelayHost.
type Claude struct {
	relayHost RelayHost
	timeout   time.Duration

	mu       sync.Mutex
	sessions map[string]RelaySession
}

// NewClaude creates a Claude adapter backed by host. A zero timeout falls
// back to DefaultRelayTimeout.
func NewClaude(host RelayHost, timeout time.Duration) *Claude {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	return &Claude{
		relayHost: host,
		timeout:   timeout,
		sessions:  make(map[string]RelaySession),
	}
}

func (c *Claude) Provider() protocol.Provider { return protocol.ProviderClaude }

func (c *Claude) SupportsSdkURL() bool { return true }

func (c *Claude) SupportedControlSubtypes() []protocol.ControlSubtype { return claudeSubtypes }

func (c *Claude) SupportsNativeRelay() bool { return true }

func (c *Claude) session(gatewaySessionID string) (RelaySession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[gatewaySessionID]
	return s, ok
}

func (c *Claude) setSession(gatewaySessionID string, s RelaySession) {
	c.mu.Lock()
	c.sessions[gatewaySessionID] = s
	c.mu.Unlock()
}

func (c *Claude) dropSession(gatewaySessionID string) {
	c.mu.Lock()
	delete(c.sessions, gatewaySessionID)
	c.mu.Unlock()
}

func (c *Claude) Initialize(ctx context.Context, actx Context) (*InitResult, error) {
	relay, err := c.relayHost.StartSession(ctx, actx.GatewaySessionID)
	if err != nil {
		return nil, fmt.Errorf("claude: start relay session: %w", err)
	}
	c.setSession(actx.GatewaySessionID, relay)

	result, err := c.runTurn(ctx, relay, relayFrame{
		Type:      string(protocol.TypeControlRequest),
		RequestID: uuid.NewString(),
		Request:   &relayRequest{Subtype: protocol.SubtypeInitialize},
	})
	if err != nil {
		_ = relay.Close(ctx)
		c.dropSession(actx.GatewaySessionID)
		return nil, err
	}

	var payload struct {
		ProviderSessionID string                 `json:"providerSessionId"`
		Info              map[string]interface{} `json:"info"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return &InitResult{}, nil
	}
	var psid *string
	if payload.ProviderSessionID != "" {
		psid = &payload.ProviderSessionID
	}
	return &InitResult{ProviderSessionID: psid, Info: payload.Info}, nil
}

func (c *Claude) AskUser(ctx context.Context, actx Context, text string) (*AskResult, error) {
	relay, ok := c.session(actx.GatewaySessionID)
	if !ok {
		init, err := c.Initialize(ctx, actx)
		if err != nil {
			return nil, err
		}
		relay, _ = c.session(actx.GatewaySessionID)
		actx.ProviderSessionID = init.ProviderSessionID
	}

	result, err := c.runTurn(ctx, relay, relayFrame{
		Type:      "user",
		SessionID: actx.GatewaySessionID,
		RequestID: uuid.NewString(),
	}, text)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Text              string `json:"text"`
		ProviderSessionID string `json:"providerSessionId"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return &AskResult{Text: string(result), Raw: result}, nil
	}
	var psid *string
	if payload.ProviderSessionID != "" {
		psid = &payload.ProviderSessionID
	}
	return &AskResult{Text: payload.Text, ProviderSessionID: psid, Raw: result}, nil
}

// controlRequest relays a non-initialize, non-user control request to the
// already-running child process and decodes its result frame as a JSON
// object. Every other optional control method is a thin wrapper around this.
func (c *Claude) controlRequest(ctx context.Context, actx Context, subtype protocol.ControlSubtype, input json.RawMessage) (map[string]interface{}, error) {
	relay, ok := c.session(actx.GatewaySessionID)
	if !ok {
		return nil, fmt.Errorf("claude: no active relay session for %s", actx.GatewaySessionID)
	}

	result, err := c.runTurn(ctx, relay, relayFrame{
		Type:      string(protocol.TypeControlRequest),
		RequestID: uuid.NewString(),
		Request:   &relayRequest{Subtype: subtype, Input: input},
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &payload); err != nil {
			return map[string]interface{}{}, nil
		}
	}
	return payload, nil
}

func (c *Claude) SetModel(ctx context.Context, actx Context, model string) (map[string]interface{}, error) {
	input, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return nil, fmt.Errorf("claude: encode set_model input: %w", err)
	}
	return c.controlRequest(ctx, actx, protocol.SubtypeSetModel, input)
}

func (c *Claude) SetPermissionMode(ctx context.Context, actx Context, mode protocol.PermissionMode) (map[string]interface{}, error) {
	input, err := json.Marshal(map[string]string{"mode": string(mode)})
	if err != nil {
		return nil, fmt.Errorf("claude: encode set_permission_mode input: %w", err)
	}
	return c.controlRequest(ctx, actx, protocol.SubtypeSetPermissionMode, input)
}

func (c *Claude) SetMaxThinkingTokens(ctx context.Context, actx Context, tokens *int) (map[string]interface{}, error) {
	input, err := json.Marshal(map[string]*int{"maxThinkingTokens": tokens})
	if err != nil {
		return nil, fmt.Errorf("claude: encode set_max_thinking_tokens input: %w", err)
	}
	return c.controlRequest(ctx, actx, protocol.SubtypeSetMaxThinkingTokens, input)
}

func (c *Claude) Interrupt(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeInterrupt, nil)
}

func (c *Claude) McpStatus(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeMcpStatus, nil)
}

func (c *Claude) McpMessage(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeMcpMessage, payload)
}

func (c *Claude) McpSetServers(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeMcpSetServers, payload)
}

func (c *Claude) McpReconnect(ctx context.Context, actx Context) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeMcpReconnect, nil)
}

func (c *Claude) McpToggle(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeMcpToggle, payload)
}

func (c *Claude) RewindFiles(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeRewindFiles, payload)
}

func (c *Claude) HookCallback(ctx context.Context, actx Context, payload json.RawMessage) (map[string]interface{}, error) {
	return c.controlRequest(ctx, actx, protocol.SubtypeHookCallback, payload)
}

// runTurn writes outbound to the relay (appending an optional literal text
// payload for user turns) and then loops: any nested control_request frame
// from the child is auto-answered, every other frame is ignored, until a
// "result" frame arrives or the per-turn timeout elapses.
func (c *Claude) runTurn(ctx context.Context, relay RelaySession, outbound relayFrame, text ...string) (json.RawMessage, error) {
	frameBytes, err := encodeOutbound(outbound, text...)
	if err != nil {
		return nil, fmt.Errorf("claude: encode outbound frame: %w", err)
	}
	if err := relay.Write(ctx, frameBytes); err != nil {
		return nil, fmt.Errorf("claude: write relay frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	for {
		raw, err := relay.Read(ctx)
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("claude: relay closed before result frame")
			}
			return nil, fmt.Errorf("claude: read relay frame: %w", err)
		}

		var frame relayFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case string(protocol.TypeControlRequest):
			if err := c.autoAnswer(ctx, relay, frame); err != nil {
				return nil, err
			}
		case "result":
			return frame.Result, nil
		}
	}
}

// autoAnswer replies to a nested control_request issued by the child
// itself: can_use_tool is auto-allowed with the input echoed back,
// mcp_* subtypes get an empty acknowledgment.
func (c *Claude) autoAnswer(ctx context.Context, relay RelaySession, frame relayFrame) error {
	if frame.Request == nil {
		return nil
	}

	var response map[string]interface{}
	switch {
	case frame.Request.Subtype == protocol.SubtypeCanUseTool:
		response = map[string]interface{}{"behavior": "allow", "updatedInput": json.RawMessage(frame.Request.Input)}
	case strings.HasPrefix(string(frame.Request.Subtype), "mcp_"):
		response = map[string]interface{}{}
	default:
		response = map[string]interface{}{}
	}

	reply := protocol.NewSuccessResponse(frame.RequestID, response)
	data, err := protocol.Encode(reply)
	if err != nil {
		return fmt.Errorf("claude: encode auto-answer: %w", err)
	}
	if err := relay.Write(ctx, data); err != nil {
		return fmt.Errorf("claude: write auto-answer: %w", err)
	}
	return nil
}

func encodeOutbound(f relayFrame, text ...string) ([]byte, error) {
	if len(text) == 0 {
		return json.Marshal(f)
	}
	withText := struct {
		relayFrame
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}{relayFrame: f}
	withText.Message.Role = "user"
	withText.Message.Content = text[0]
	return json.Marshal(withText)
}

// Close tears down any relay session still open for gatewaySessionID.
func (c *Claude) Close(ctx context.Context, gatewaySessionID string) error {
	relay, ok := c.session(gatewaySessionID)
	if !ok {
		return nil
	}
	c.dropSession(gatewaySessionID)
	return relay.Close(ctx)
}

var _ Adapter = (*Claude)(nil)
var _ ModelSetter = (*Claude)(nil)
var _ PermissionModeSetter = (*Claude)(nil)
var _ MaxThinkingTokensSetter = (*Claude)(nil)
var _ Interrupter = (*Claude)(nil)
var _ McpStatusProvider = (*Claude)(nil)
var _ McpMessenger = (*Claude)(nil)
var _ McpServerSetter = (*Claude)(nil)
var _ McpReconnector = (*Claude)(nil)
var _ McpToggler = (*Claude)(nil)
var _ FileRewinder = (*Claude)(nil)
var _ HookCallbackHandler = (*Claude)(nil)
