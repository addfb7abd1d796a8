package policy

import (
	"encoding/json"
	"fmt"

	"github.com/ronaldeddings/unified-agent/internal/protocol"
)

// DefaultPayloadCapBytes is the default frame size bound (spec §4.7: "512
// KiB default").
const DefaultPayloadCapBytes = 512 * 1024

// CheckPayloadSize returns an INVALID_ARGUMENT error if data exceeds cap
// bytes. A non-positive cap falls back to DefaultPayloadCapBytes.
func CheckPayloadSize(data []byte, cap int) error {
	if cap <= 0 {
		cap = DefaultPayloadCapBytes
	}
	if len(data) > cap {
		return protocol.NewError(protocol.CodeInvalidArgument, fmt.Sprintf("payload of %d bytes exceeds the %d byte cap", len(data), cap))
	}
	return nil
}

// CanUseToolDecision is the {behavior, updatedInput?} shape a can_use_tool
// response must satisfy (spec §4.7).
type CanUseToolDecision struct {
	Behavior     string          `json:"behavior"`
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`
}

// ValidateCanUseToolDecision requires behavior to be "allow" or "deny", and
// (if present) updatedInput to decode to a JSON object rather than an
// array.
func ValidateCanUseToolDecision(d CanUseToolDecision) error {
	if d.Behavior != "allow" && d.Behavior != "deny" {
		return protocol.NewError(protocol.CodeInvalidArgument, fmt.Sprintf("can_use_tool behavior must be allow or deny, got %q", d.Behavior))
	}
	if len(d.UpdatedInput) > 0 {
		var probe map[string]interface{}
		if err := json.Unmarshal(d.UpdatedInput, &probe); err != nil {
			return protocol.NewError(protocol.CodeInvalidArgument, "can_use_tool updatedInput must be a JSON object")
		}
	}
	return nil
}
