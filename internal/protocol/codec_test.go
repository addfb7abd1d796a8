package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeControlRequestInitialize(t *testing.T) {
	raw := `{"type":"control_request","request_id":"r1","request":{"subtype":"initialize","provider":"mock"}}`
	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	req, ok := env.(*ControlRequestEnvelope)
	if !ok {
		t.Fatalf("expected *ControlRequestEnvelope, got %T", env)
	}
	if req.RequestID != "r1" || req.Request.Subtype != SubtypeInitialize || req.Request.Provider != ProviderMock {
		t.Fatalf("unexpected envelope: %+v", req)
	}
}

func TestDecodeControlRequestInitializeRejectsBadProvider(t *testing.T) {
	raw := `{"type":"control_request","request_id":"r1","request":{"subtype":"initialize","provider":"bogus"}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for invalid provider")
	}
}

func TestDecodeControlRequestRejectsUnknownSubtype(t *testing.T) {
	raw := `{"type":"control_request","request_id":"r1","request":{"subtype":"nonsense"}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for unknown subtype")
	}
}

func TestDecodeSetModelRequiresNonEmptyModel(t *testing.T) {
	raw := `{"type":"control_request","request_id":"r1","request":{"subtype":"set_model","model":""}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestDecodeSetPermissionModeRejectsInvalidMode(t *testing.T) {
	raw := `{"type":"control_request","request_id":"r1","request":{"subtype":"set_permission_mode","mode":"invalid"}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for invalid permission mode")
	}
}

func TestDecodeUserEnvelope(t *testing.T) {
	raw := `{"type":"user","session_id":"s1","message":{"role":"user","content":"hello"}}`
	env, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	u, ok := env.(*UserEnvelope)
	if !ok {
		t.Fatalf("expected *UserEnvelope, got %T", env)
	}
	if u.SessionID != "s1" || u.Message.Content != "hello" {
		t.Fatalf("unexpected envelope: %+v", u)
	}
}

func TestDecodeUserEnvelopeRequiresUserRole(t *testing.T) {
	raw := `{"type":"user","session_id":"s1","message":{"role":"system","content":"hello"}}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for non-user role")
	}
}

func TestDecodeCancelRequiresRequestID(t *testing.T) {
	raw := `{"type":"control_cancel_request"}`
	if _, err := Decode([]byte(raw)); err == nil {
		t.Fatal("expected error for missing request_id")
	}
}

func TestDecodeUnknownTypeIsDroppable(t *testing.T) {
	raw := `{"type":"backend_native_frame","foo":"bar"}`
	_, err := Decode([]byte(raw))
	if err == nil {
		t.Fatal("expected error for unrecognized type")
	}
	if !IsUnsupportedType(err) {
		t.Fatalf("expected unsupported-type error, got: %v", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Envelope{
		NewSuccessResponse("r1", map[string]interface{}{"model": "gpt-5"}),
		NewErrorResponse("r1", CodeRateLimited, "too many requests"),
		NewTransportState("s1", "cli_connected", ProviderMock, "mock-1", []string{"initialize"}),
		NewSystemWarning("s1", map[string]interface{}{"compatibility": "emulated-or-unsupported"}),
		NewAssistantMessage("s1", "mock: hello"),
		NewPermissionCancelled("s1", "r3", "backend disconnected"),
		&ErrorEnvelope{Type: TypeError, Code: string(CodeInvalidEnvelope), Message: "bad frame"},
	}

	for _, want := range cases {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%T) failed: %v", want, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%T) failed: %v", want, err)
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			t.Fatalf("round trip mismatch: want %s, got %s", wantJSON, gotJSON)
		}
	}
}

func TestCodeOfPreservesGatewayErrorCode(t *testing.T) {
	err := NewError(CodePolicyDenied, "nope")
	if CodeOf(err) != CodePolicyDenied {
		t.Fatalf("expected CodePolicyDenied, got %v", CodeOf(err))
	}
	if CodeOf(errTestPlain) != CodeInternalError {
		t.Fatalf("expected CodeInternalError for plain error, got %v", CodeOf(errTestPlain))
	}
}

var errTestPlain = &plainError{"boom"}

type plainError struct{ msg string }

func (e *plainError) Error() string { return e.msg }
