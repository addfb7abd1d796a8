package session

import "github.com/ronaldeddings/unified-agent/internal/protocol"

// Hydrate builds the envelope sequence a reconnecting client must receive,
// in order (spec §4.10): a system.status snapshot of current session
// state, every buffered replay envelope, then one system.status per
// outstanding pending permission.
func Hydrate(st *State) []protocol.Envelope {
	f := st.snapshot()

	statusPayload := map[string]interface{}{
		"provider":         string(f.Provider),
		"permissionMode":   string(f.PermissionMode),
		"gatewaySessionId": st.GatewaySessionID,
		"connected":        f.Connected,
	}
	if f.Model != nil {
		statusPayload["model"] = *f.Model
	}
	if f.ProviderSessionID != nil {
		statusPayload["providerSessionId"] = *f.ProviderSessionID
	}

	out := make([]protocol.Envelope, 0, 1+st.Replay.Len()+st.Correlator.PendingPermissionCount())
	out = append(out, protocol.NewSystemStatus(st.SessionID, statusPayload))
	out = append(out, st.Replay.GetAll()...)

	for _, pp := range st.Correlator.PendingPermissions() {
		out = append(out, protocol.NewSystemStatus(st.SessionID, map[string]interface{}{
			"requestId": pp.RequestID,
			"toolName":  pp.ToolName,
			"toolUseId": pp.ToolUseID,
		}))
	}
	return out
}
