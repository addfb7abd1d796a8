package adapter

import (
	"context"
	"fmt"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// Dispatch routes a control-request body to the optional method on a that
// corresponds to body.Subtype. The bool return reports whether a matched
// and implemented the subtype; when false, the caller (the router) is
// responsible for the response, and the router answers success with
// {"supported": false}. Dispatch itself never fabricates a response.
func Dispatch(ctx context.Context, a Adapter, actx Context, body protocol.ControlRequestBody) (map[string]interface{}, bool, error) {
	switch body.Subtype {
	case protocol.SubtypeSetModel:
		h, ok := a.(ModelSetter)
		if !ok {
			return nil, false, nil
		}
		res, err := h.SetModel(ctx, actx, body.Model)
		return res, true, err

	case protocol.SubtypeSetPermissionMode:
		h, ok := a.(PermissionModeSetter)
		if !ok {
			return nil, false, nil
		}
		res, err := h.SetPermissionMode(ctx, actx, body.Mode)
		return res, true, err

	case protocol.SubtypeSetMaxThinkingTokens:
		h, ok := a.(MaxThinkingTokensSetter)
		if !ok {
			return nil, false, nil
		}
		res, err := h.SetMaxThinkingTokens(ctx, actx, body.MaxThinkingTokens)
		return res, true, err

	case protocol.SubtypeInterrupt:
		h, ok := a.(Interrupter)
		if !ok {
			return nil, false, nil
		}
		res, err := h.Interrupt(ctx, actx)
		return res, true, err

	case protocol.SubtypeCanUseTool:
		h, ok := a.(CanUseToolHandler)
		if !ok {
			return nil, false, nil
		}
		res, err := h.CanUseTool(ctx, actx, body)
		return res, true, err

	case protocol.SubtypeMcpStatus:
		h, ok := a.(McpStatusProvider)
		if !ok {
			return nil, false, nil
		}
		res, err := h.McpStatus(ctx, actx)
		return res, true, err

	case protocol.SubtypeMcpMessage:
		h, ok := a.(McpMessenger)
		if !ok {
			return nil, false, nil
		}
		res, err := h.McpMessage(ctx, actx, body.Extra)
		return res, true, err

	case protocol.SubtypeMcpSetServers:
		h, ok := a.(McpServerSetter)
		if !ok {
			return nil, false, nil
		}
		res, err := h.McpSetServers(ctx, actx, body.Extra)
		return res, true, err

	case protocol.SubtypeMcpReconnect:
		h, ok := a.(McpReconnector)
		if !ok {
			return nil, false, nil
		}
		res, err := h.McpReconnect(ctx, actx)
		return res, true, err

	case protocol.SubtypeMcpToggle:
		h, ok := a.(McpToggler)
		if !ok {
			return nil, false, nil
		}
		res, err := h.McpToggle(ctx, actx, body.Extra)
		return res, true, err

	case protocol.SubtypeRewindFiles:
		h, ok := a.(FileRewinder)
		if !ok {
			return nil, false, nil
		}
		res, err := h.RewindFiles(ctx, actx, body.Extra)
		return res, true, err

	case protocol.SubtypeHookCallback:
		h, ok := a.(HookCallbackHandler)
		if !ok {
			return nil, false, nil
		}
		res, err := h.HookCallback(ctx, actx, body.Extra)
		return res, true, err

	default:
		return nil, false, fmt.Errorf("adapter: no dispatch route for subtype %q", body.Subtype)
	}
}
