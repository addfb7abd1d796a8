package protocol

// NewSuccessResponse builds the canonical control_response.success envelope.
func NewSuccessResponse(requestID string, payload map[string]interface{}) *ControlResponseEnvelope {
	return &ControlResponseEnvelope{
		Type: TypeControlResponse,
		Response: ControlResponseBody{
			Subtype:   ResponseSuccess,
			RequestID: requestID,
			Response:  payload,
		},
	}
}

// NewErrorResponse builds the canonical control_response.error envelope.
func NewErrorResponse(requestID string, code Code, message string) *ControlResponseEnvelope {
	return &ControlResponseEnvelope{
		Type: TypeControlResponse,
		Response: ControlResponseBody{
			Subtype:   ResponseError,
			RequestID: requestID,
			Error:     message,
			Code:      string(code),
		},
	}
}

// NewErrorEnvelope builds a top-level error envelope for non-control
// failures.
func NewErrorEnvelope(code Code, message string) *ErrorEnvelope {
	return &ErrorEnvelope{Type: TypeError, Code: string(code), Message: message}
}

// NewTransportState builds a transport_state envelope.
func NewTransportState(sessionID, state string, provider Provider, model string, capabilities []string) *TransportStateEnvelope {
	return &TransportStateEnvelope{
		Type:         TypeTransportState,
		SessionID:    sessionID,
		State:        state,
		Provider:     provider,
		Model:        model,
		Capabilities: capabilities,
	}
}

// NewSystemWarning builds a system.warning envelope carrying the given
// payload (e.g. {"compatibility":"emulated-or-unsupported"} or
// {"relaunch":"required"}).
func NewSystemWarning(sessionID string, payload map[string]interface{}) *SystemEnvelope {
	return &SystemEnvelope{
		Type:      TypeSystem,
		SessionID: sessionID,
		Event:     SystemEvent{Subtype: "warning", Payload: payload},
	}
}

// NewSystemStatus builds a system.status envelope.
func NewSystemStatus(sessionID string, payload map[string]interface{}) *SystemEnvelope {
	return &SystemEnvelope{
		Type:      TypeSystem,
		SessionID: sessionID,
		Event:     SystemEvent{Subtype: "status", Payload: payload},
	}
}

// NewAssistantMessage builds an assistant.message envelope.
func NewAssistantMessage(sessionID, text string) *AssistantEnvelope {
	return &AssistantEnvelope{
		Type:      TypeAssistant,
		SessionID: sessionID,
		Event:     AssistantEvent{Subtype: "message", Text: text},
	}
}

// NewPermissionCancelled builds a permission_cancelled envelope.
func NewPermissionCancelled(sessionID, requestID, reason string) *PermissionCancelledEnvelope {
	return &PermissionCancelledEnvelope{
		Type:      TypePermissionCancelled,
		SessionID: sessionID,
		RequestID: requestID,
		Reason:    reason,
	}
}
