// Package apierror defines the stable error taxonomy shared by the
// AccountGate transport clients and middleware. Every error that reaches a
// response body is mapped to one of the kinds below first; raw transport
// errors never leak to callers.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error code. The string values are the wire
// codes used in the JSON error envelope and by the backend internal API.
type Kind string

const (
	// KindMissingData indicates a required request parameter was absent.
	KindMissingData Kind = "MISSING_DATA"
	// KindValidation indicates a request parameter was present but malformed.
	KindValidation Kind = "VALIDATION_ERROR"
	// KindAuthFailed is the generic authentication failure.
	KindAuthFailed Kind = "AUTH_FAILED"
	// KindTokenInvalid indicates a token failed verification or violated
	// the ownership/type invariants.
	KindTokenInvalid Kind = "TOKEN_INVALID"
	// KindTokenExpired indicates a token was verified but has expired.
	KindTokenExpired Kind = "TOKEN_EXPIRED"
	// KindPermissionDenied indicates the account is authenticated but not
	// allowed to perform the operation.
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	// KindUserNotFound indicates the target account does not exist.
	KindUserNotFound Kind = "USER_NOT_FOUND"
	// KindServerError is the catch-all for unexpected backend failures.
	KindServerError Kind = "SERVER_ERROR"
	// KindConnectionError indicates the backend could not be reached.
	KindConnectionError Kind = "CONNECTION_ERROR"
	// KindTimeout indicates a backend call exceeded its deadline.
	KindTimeout Kind = "TIMEOUT_ERROR"
	// KindServiceUnavailable indicates a transport-layer failure on both
	// backends.
	KindServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
)

// HTTPStatus maps an error kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindMissingData, KindValidation:
		return http.StatusBadRequest
	case KindAuthFailed, KindTokenInvalid, KindTokenExpired:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindUserNotFound:
		return http.StatusNotFound
	case KindConnectionError, KindTimeout, KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error carried through the validation pipeline.
type Error struct {
	// Kind is the machine-readable error code.
	Kind Kind
	// Message is a client-safe description. It must not contain raw
	// transport details, stack traces, or token material.
	Message string
	// Err is the underlying error, kept for logging only.
	Err error
}

// New creates an Error with the given kind and client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error that records cause for logging while exposing only
// the client-safe message.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. It supports
// errors.Is(err, apierror.New(kind, "")) style comparisons.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from an error chain. Unclassified errors are
// reported as KindServerError so no raw failure reaches a response body.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindServerError
}

// Message returns the client-safe message for an error chain. Unclassified
// errors get a generic message.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "internal server error"
}
