package protocol

import (
	"encoding/json"
	"fmt"
)

type typePeek struct {
	Type string `json:"type"`
}

// rawControlRequest mirrors ControlRequestEnvelope but keeps Request as raw
// JSON so Decode can both populate the typed fields and retain the
// subtype-specific remainder in Extra.
type rawControlRequest struct {
	Type      EnvelopeType    `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id"`
	Request   json.RawMessage `json:"request"`
}

// Decode parses a single wire frame into its recognized Envelope variant.
//
// Per spec §4.3 item 2: an error whose message begins with "unsupported
// envelope.type" signals a type the router should drop rather than reject
// (callers should check protocol.IsUnsupportedType). Any other error is a
// malformed *known* type and should surface as INVALID_ENVELOPE.
func Decode(data []byte) (Envelope, error) {
	var peek typePeek
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if peek.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}

	switch EnvelopeType(peek.Type) {
	case TypeControlRequest:
		return decodeControlRequest(data)
	case TypeControlResponse:
		var e ControlResponseEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode control_response: %w", err)
		}
		return &e, nil
	case TypeControlCancelRequest:
		var e ControlCancelRequestEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode control_cancel_request: %w", err)
		}
		if e.RequestID == "" {
			return nil, fmt.Errorf("control_cancel_request requires request_id")
		}
		return &e, nil
	case TypeUser:
		var e UserEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		if e.SessionID == "" {
			return nil, fmt.Errorf("user envelope requires session_id")
		}
		if e.Message.Role != "user" {
			return nil, fmt.Errorf("user envelope requires message.role = \"user\"")
		}
		return &e, nil
	case TypeAssistant:
		var e AssistantEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode assistant: %w", err)
		}
		return &e, nil
	case TypeSystem:
		var e SystemEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode system: %w", err)
		}
		return &e, nil
	case TypeTransportState:
		var e TransportStateEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode transport_state: %w", err)
		}
		return &e, nil
	case TypePermissionCancelled:
		var e PermissionCancelledEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode permission_cancelled: %w", err)
		}
		return &e, nil
	case TypeKeepAlive:
		var e KeepAliveEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode keep_alive: %w", err)
		}
		return &e, nil
	case TypeUpdateEnvVars:
		var e UpdateEnvVarsEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode update_environment_variables: %w", err)
		}
		return &e, nil
	case TypeError:
		var e ErrorEnvelope
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return &e, nil
	default:
		return nil, unsupportedTypeError(peek.Type)
	}
}

func decodeControlRequest(data []byte) (Envelope, error) {
	var raw rawControlRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode control_request: %w", err)
	}
	if raw.RequestID == "" {
		return nil, fmt.Errorf("control_request requires request_id")
	}
	if len(raw.Request) == 0 {
		return nil, fmt.Errorf("control_request requires request")
	}

	var body ControlRequestBody
	if err := json.Unmarshal(raw.Request, &body); err != nil {
		return nil, fmt.Errorf("decode control_request.request: %w", err)
	}
	if !body.Subtype.IsValid() {
		return nil, fmt.Errorf("control_request.request.subtype %q is not recognized", body.Subtype)
	}
	body.Extra = raw.Request

	switch body.Subtype {
	case SubtypeInitialize:
		if !body.Provider.IsValid() {
			return nil, fmt.Errorf("initialize requires a valid provider, got %q", body.Provider)
		}
	case SubtypeSetPermissionMode:
		if !body.Mode.IsValid() {
			return nil, fmt.Errorf("set_permission_mode requires a valid mode, got %q", body.Mode)
		}
	case SubtypeSetModel:
		if body.Model == "" {
			return nil, fmt.Errorf("set_model requires a non-empty model")
		}
	}

	return &ControlRequestEnvelope{
		Type:      raw.Type,
		SessionID: raw.SessionID,
		RequestID: raw.RequestID,
		Request:   body,
	}, nil
}

// Encode serializes an Envelope back to its wire form.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}
