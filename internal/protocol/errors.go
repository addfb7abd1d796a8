package protocol

import (
	"errors"
	"fmt"
)

// Code is the closed error taxonomy used by every control failure and every
// top-level error envelope.
type Code string

const (
	CodeInvalidEnvelope Code = "INVALID_ENVELOPE"
	CodeUnknownSubtype  Code = "UNKNOWN_SUBTYPE"
	CodePolicyDenied    Code = "POLICY_DENIED"
	CodeNotInitialized  Code = "NOT_INITIALIZED"
	CodeRequestTimeout  Code = "REQUEST_TIMEOUT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInternalError   Code = "INTERNAL_ERROR"
)

// GatewayError is an error carrying one of the taxonomy codes. The router
// maps any other error returned by an adapter to CodeInternalError; a
// GatewayError returned by an adapter passes its own code through
// untouched (spec §7: "unless the exception itself carries one of the
// taxonomy codes").
type GatewayError struct {
	Code    Code
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs a GatewayError.
func NewError(code Code, message string) *GatewayError {
	return &GatewayError{Code: code, Message: message}
}

// CodeOf extracts the taxonomy code from err, defaulting to
// CodeInternalError when err does not carry one.
func CodeOf(err error) Code {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternalError
}

// errUnsupportedType is the sentinel distinguishing an unrecognized
// envelope.type (dropped silently) from a malformed known type (reported as
// INVALID_ENVELOPE). The error message begins with "unsupported
// envelope.type"; the router identifies this case with IsUnsupportedType.
var errUnsupportedType = errors.New("unsupported envelope.type")

// IsUnsupportedType reports whether err signals an unrecognized
// envelope.type that the router should drop rather than reject.
func IsUnsupportedType(err error) bool {
	return errors.Is(err, errUnsupportedType)
}

func unsupportedTypeError(t string) error {
	return fmt.Errorf("%w: %s", errUnsupportedType, t)
}
