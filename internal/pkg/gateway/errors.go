package gateway

import (
	"errors"
	"fmt"
)

// Error type tags surfaced to API clients as "errorType".
const (
	ErrorTypeValidation    = "ValidationError"
	ErrorTypeConfiguration = "ConfigurationError"
	ErrorTypeClientInit    = "ClientInitError"
	ErrorTypeMetadata      = "MetadataError"
	ErrorTypeRequestBuild  = "RequestBuildError"
	ErrorTypeGatewayAPI    = "GatewayAPIError"
	ErrorTypeCallback      = "CallbackValidationError"
	ErrorTypeSignature     = "SignatureVerificationError"
	ErrorTypeDatabase      = "DatabaseError"
	ErrorTypeNotFound      = "NotFoundError"
)

// Error is a failure tagged with the step that produced it.
type Error struct {
	Type    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Details returns the upstream error text, if any.
func (e *Error) Details() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// NewError builds a tagged error.
func NewError(errType, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// TypeOf returns the tag of a tagged error, or "" for plain errors.
func TypeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Type
	}
	return ""
}
