package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ronaldeddings/unified-agent/internal/adapter"
	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

func newTestRouter() *Router {
	rt := NewRouter(NewRegistry(), &adapter.Factory{})
	rt.CanUseToolDefault = "deny"
	return rt
}

func mustEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func initializeFrame(requestID string, provider protocol.Provider) map[string]interface{} {
	return map[string]interface{}{
		"type":       "control_request",
		"request_id": requestID,
		"request": map[string]interface{}{
			"subtype":  "initialize",
			"provider": string(provider),
		},
	}
}

func TestHandleFrameInitializeMockEmitsTransitionThenSuccess(t *testing.T) {
	rt := newTestRouter()
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	if len(out) != 2 {
		t.Fatalf("expected 2 envelopes, got %d: %+v", len(out), out)
	}
	ts, ok := out[0].(*protocol.TransportStateEnvelope)
	if !ok || ts.State != "cli_connected" {
		t.Fatalf("expected first envelope to be transport_state cli_connected, got %+v", out[0])
	}
	resp, ok := out[1].(*protocol.ControlResponseEnvelope)
	if !ok || resp.Response.Subtype != protocol.ResponseSuccess {
		t.Fatalf("expected second envelope to be control_response.success, got %+v", out[1])
	}

	st, ok := rt.Registry.Get("sess-1")
	if !ok {
		t.Fatal("expected session to be registered after initialize")
	}
	f := st.snapshot()
	if !f.Connected {
		t.Fatal("expected session to be connected after initialize")
	}
	if f.MetaSessionID == nil {
		t.Fatal("expected a meta session id to be assigned")
	}
}

func TestHandleFrameControlRequestBeforeInitializeIsNotInitialized(t *testing.T) {
	rt := newTestRouter()
	frame := map[string]interface{}{
		"type":       "control_request",
		"request_id": "r1",
		"request":    map[string]interface{}{"subtype": "interrupt"},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if len(out) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(out))
	}
	resp := out[0].(*protocol.ControlResponseEnvelope)
	if resp.Response.Code != string(protocol.CodeNotInitialized) {
		t.Fatalf("expected NOT_INITIALIZED, got %q", resp.Response.Code)
	}
}

func TestHandleFrameUnsupportedSubtypeEmitsWarningThenError(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderCodex)))

	frame := map[string]interface{}{
		"type":       "control_request",
		"request_id": "r2",
		"request":    map[string]interface{}{"subtype": "rewind_files"},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if len(out) != 2 {
		t.Fatalf("expected 2 envelopes, got %d: %+v", len(out), out)
	}
	warn, ok := out[0].(*protocol.SystemEnvelope)
	if !ok || warn.Event.Subtype != "warning" || warn.Event.Payload["compatibility"] != "emulated-or-unsupported" {
		t.Fatalf("expected system.warning emulated-or-unsupported, got %+v", out[0])
	}
	resp := out[1].(*protocol.ControlResponseEnvelope)
	if resp.Response.Code != string(protocol.CodeUnknownSubtype) {
		t.Fatalf("expected UNKNOWN_SUBTYPE, got %q", resp.Response.Code)
	}
}

func TestHandleFrameSetModelRoundTrips(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	frame := map[string]interface{}{
		"type":       "control_request",
		"request_id": "r2",
		"request":    map[string]interface{}{"subtype": "set_model", "model": "opus"},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if len(out) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(out))
	}
	resp := out[0].(*protocol.ControlResponseEnvelope)
	if resp.Response.Response["model"] != "opus" {
		t.Fatalf("expected model=opus echoed back, got %+v", resp.Response.Response)
	}

	st, ok := rt.Registry.Get("sess-1")
	if !ok {
		t.Fatal("expected session to be registered")
	}
	st.Read(func(f Fields) {
		if f.Model == nil || *f.Model != "opus" {
			t.Fatalf("expected Fields.Model to be stored as opus, got %+v", f.Model)
		}
	})
}

func TestHandleFrameSetModelDefaultClearsStoredModel(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, map[string]interface{}{
		"type": "control_request", "request_id": "r2",
		"request": map[string]interface{}{"subtype": "set_model", "model": "opus"},
	}))
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, map[string]interface{}{
		"type": "control_request", "request_id": "r3",
		"request": map[string]interface{}{"subtype": "set_model", "model": "default"},
	}))

	st, _ := rt.Registry.Get("sess-1")
	st.Read(func(f Fields) {
		if f.Model != nil {
			t.Fatalf("expected Fields.Model to be cleared after set_model default, got %+v", *f.Model)
		}
	})
}

func TestHandleFrameSetPermissionModePersistsForNextAdapterCall(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, map[string]interface{}{
		"type": "control_request", "request_id": "r2",
		"request": map[string]interface{}{"subtype": "set_permission_mode", "mode": "plan"},
	}))
	resp := out[0].(*protocol.ControlResponseEnvelope)
	if resp.Response.Response["mode"] != "plan" {
		t.Fatalf("expected mode=plan echoed back, got %+v", resp.Response.Response)
	}

	st, _ := rt.Registry.Get("sess-1")
	st.Read(func(f Fields) {
		if f.PermissionMode != protocol.PermissionPlan {
			t.Fatalf("expected Fields.PermissionMode to be stored as plan, got %q", f.PermissionMode)
		}
	})
}

func TestHandleFrameSetMaxThinkingTokensNullClearsStoredValue(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, map[string]interface{}{
		"type": "control_request", "request_id": "r2",
		"request": map[string]interface{}{"subtype": "set_max_thinking_tokens", "maxThinkingTokens": 2048},
	}))

	st, _ := rt.Registry.Get("sess-1")
	st.Read(func(f Fields) {
		if f.MaxThinkingTokens == nil || *f.MaxThinkingTokens != 2048 {
			t.Fatalf("expected Fields.MaxThinkingTokens to be stored as 2048, got %+v", f.MaxThinkingTokens)
		}
	})

	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, map[string]interface{}{
		"type": "control_request", "request_id": "r3",
		"request": map[string]interface{}{"subtype": "set_max_thinking_tokens", "maxThinkingTokens": nil},
	}))
	st.Read(func(f Fields) {
		if f.MaxThinkingTokens != nil {
			t.Fatalf("expected Fields.MaxThinkingTokens to be cleared by null, got %+v", *f.MaxThinkingTokens)
		}
	})
}

func TestHandleFrameCanUseToolDefaultDeny(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	frame := map[string]interface{}{
		"type":       "control_request",
		"request_id": "r2",
		"request": map[string]interface{}{
			"subtype":   "can_use_tool",
			"tool_name": "bash",
		},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	resp := out[0].(*protocol.ControlResponseEnvelope)
	if resp.Response.Response["behavior"] != "deny" {
		t.Fatalf("expected default-deny behavior, got %+v", resp.Response.Response)
	}

	st, _ := rt.Registry.Get("sess-1")
	if st.Correlator.PendingPermissionCount() != 0 {
		t.Fatal("expected the permission to be resolved, not left pending")
	}
}

func TestHandleFrameCanUseToolAllowEchoesUpdatedInput(t *testing.T) {
	rt := newTestRouter()
	rt.CanUseToolDefault = "allow"
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	frame := map[string]interface{}{
		"type":       "control_request",
		"request_id": "r2",
		"request": map[string]interface{}{
			"subtype":      "can_use_tool",
			"tool_name":    "bash",
			"updatedInput": map[string]interface{}{"cmd": "ls"},
		},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	resp := out[0].(*protocol.ControlResponseEnvelope)
	if resp.Response.Response["behavior"] != "allow" {
		t.Fatalf("expected allow behavior, got %+v", resp.Response.Response)
	}
	if resp.Response.Response["updatedInput"] == nil {
		t.Fatal("expected updatedInput to be echoed back")
	}
}

func TestHandleFrameCancelRequestResolvesPendingPermission(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	st, _ := rt.Registry.Get("sess-1")
	st.Submit(func() {
		st.Correlator.AddPermission("sess-1", "pending-1", "bash", "tu-1", protocol.ControlRequestBody{Subtype: protocol.SubtypeCanUseTool})
	})

	frame := map[string]interface{}{"type": "control_cancel_request", "request_id": "pending-1"}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if len(out) != 2 {
		t.Fatalf("expected permission_cancelled + success, got %d: %+v", len(out), out)
	}
	if _, ok := out[0].(*protocol.PermissionCancelledEnvelope); !ok {
		t.Fatalf("expected permission_cancelled first, got %+v", out[0])
	}
}

func TestHandleFrameUserMessageReturnsAssistantReply(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	frame := map[string]interface{}{
		"type":       "user",
		"session_id": "sess-1",
		"message":    map[string]interface{}{"role": "user", "content": "hello"},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if len(out) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(out))
	}
	assistant, ok := out[0].(*protocol.AssistantEnvelope)
	if !ok || assistant.Event.Text != "mock: hello" {
		t.Fatalf("expected assistant reply echoing mock prefix, got %+v", out[0])
	}
}

func TestHandleFrameKeepAliveTouchesLastSeen(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	st, _ := rt.Registry.Get("sess-1")
	st.Mutate(func(f *Fields) { f.LastSeenEpoch = 0 })

	frame := map[string]interface{}{"type": "keep_alive", "session_id": "sess-1"}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	if out != nil {
		t.Fatalf("expected no reply envelopes, got %+v", out)
	}
	if st.snapshot().LastSeenEpoch == 0 {
		t.Fatal("expected keep_alive to bump lastSeenEpoch")
	}
}

func TestHandleFrameUpdateEnvVarsMergesAndAcks(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	frame := map[string]interface{}{
		"type":       "update_environment_variables",
		"session_id": "sess-1",
		"variables":  map[string]string{"FOO": "bar"},
	}
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, frame))
	status, ok := out[0].(*protocol.SystemEnvelope)
	if !ok || status.Event.Subtype != "status" {
		t.Fatalf("expected system.status ack, got %+v", out[0])
	}

	st, _ := rt.Registry.Get("sess-1")
	if st.snapshot().EnvVars["FOO"] != "bar" {
		t.Fatal("expected env var to be merged into session state")
	}
}

func TestHandleFrameUnknownTypeIsDroppedSilently(t *testing.T) {
	rt := newTestRouter()
	out := rt.HandleFrame(context.Background(), "sess-1", []byte(`{"type":"native_backend_frame","foo":"bar"}`))
	if out != nil {
		t.Fatalf("expected unrecognized envelope type to be dropped, got %+v", out)
	}
}

func TestHandleFrameOversizedPayloadRejected(t *testing.T) {
	rt := newTestRouter()
	rt.PayloadCapBytes = 16
	out := rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	if len(out) != 1 {
		t.Fatalf("expected 1 error envelope, got %d", len(out))
	}
	errEnv, ok := out[0].(*protocol.ErrorEnvelope)
	if !ok || errEnv.Code != string(protocol.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT error, got %+v", out[0])
	}
}

func TestHydrateOrdersStatusReplayThenPendingPermissions(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	st, _ := rt.Registry.Get("sess-1")

	st.Submit(func() {
		st.Correlator.AddPermission("sess-1", "pending-1", "bash", "tu-1", protocol.ControlRequestBody{Subtype: protocol.SubtypeCanUseTool})
	})

	seq := Hydrate(st)
	if len(seq) < 3 {
		t.Fatalf("expected status + replay + pending permission status, got %d", len(seq))
	}
	first, ok := seq[0].(*protocol.SystemEnvelope)
	if !ok || first.Event.Subtype != "status" {
		t.Fatalf("expected first hydration envelope to be system.status, got %+v", seq[0])
	}
	last, ok := seq[len(seq)-1].(*protocol.SystemEnvelope)
	if !ok || last.Event.Payload["requestId"] != "pending-1" {
		t.Fatalf("expected last hydration envelope to announce the pending permission, got %+v", seq[len(seq)-1])
	}
}

func TestWatchdogMarksStaleSessionDisconnected(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	st, _ := rt.Registry.Get("sess-1")
	st.Mutate(func(f *Fields) { f.LastSeenEpoch = time.Now().Add(-time.Hour).Unix() })

	wd := NewWatchdog(rt.Registry)
	wd.StalenessBound = time.Millisecond
	wd.RelaunchGrace = time.Millisecond
	wd.tick()

	if st.snapshot().Connected {
		t.Fatal("expected stale session to be marked disconnected")
	}

	time.Sleep(20 * time.Millisecond)
	found := false
	for _, env := range st.Replay.GetAll() {
		if sys, ok := env.(*protocol.SystemEnvelope); ok && sys.Event.Payload["relaunch"] == "required" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a relaunch warning to land in the replay buffer")
	}
}

func TestWatchdogHandleDetachCancelsPendingPermissions(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))
	st, _ := rt.Registry.Get("sess-1")
	st.Submit(func() {
		st.Correlator.AddPermission("sess-1", "pending-1", "bash", "tu-1", protocol.ControlRequestBody{Subtype: protocol.SubtypeCanUseTool})
	})

	wd := NewWatchdog(rt.Registry)
	out := wd.HandleDetach(st, "backend disconnected")
	if len(out) != 1 {
		t.Fatalf("expected 1 permission_cancelled envelope, got %d", len(out))
	}
	if st.snapshot().Connected {
		t.Fatal("expected session to be marked disconnected")
	}
}

func TestRegistrySnapshotAndRestoreRoundTrip(t *testing.T) {
	rt := newTestRouter()
	rt.HandleFrame(context.Background(), "sess-1", mustEncode(t, initializeFrame("r1", protocol.ProviderMock)))

	records := rt.Registry.Snapshot()
	if len(records) != 1 || records[0].Connected != true {
		t.Fatalf("expected one connected session record, got %+v", records)
	}

	fresh := NewRegistry()
	fresh.Restore(records)
	restored, ok := fresh.Get("sess-1")
	if !ok {
		t.Fatal("expected restored session to be present")
	}
	if restored.snapshot().Provider != protocol.ProviderMock {
		t.Fatalf("expected restored provider to round-trip, got %q", restored.snapshot().Provider)
	}
}
