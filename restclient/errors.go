package restclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorCode classifies REST client errors.
type ErrorCode int

const (
	// ErrCodeInitialization indicates the engine could not be built.
	ErrCodeInitialization ErrorCode = iota
	// ErrCodeTransport indicates a network, TLS, or protocol failure.
	ErrCodeTransport
	// ErrCodeTimeout indicates the request deadline passed before a response arrived.
	ErrCodeTimeout
	// ErrCodeDeserialization indicates a response body did not match the declared type.
	ErrCodeDeserialization
	// ErrCodeIllegalState indicates misuse, such as a missing method or a stopped client.
	ErrCodeIllegalState
	// ErrCodeValidation indicates an invalid request or configuration value.
	ErrCodeValidation
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInitialization:
		return "initialization"
	case ErrCodeTransport:
		return "transport"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeDeserialization:
		return "deserialization"
	case ErrCodeIllegalState:
		return "illegal_state"
	case ErrCodeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified REST client error.
type Error struct {
	// Code classifies the error.
	Code ErrorCode
	// Message describes the error.
	Message string
	// StatusCode is the HTTP status of a received response (0 otherwise).
	StatusCode int
	// Body is the response body for deserialization errors.
	Body []byte
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("restclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("restclient: %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInitializationError wraps an engine construction failure.
func NewInitializationError(err error) *Error {
	return &Error{Code: ErrCodeInitialization, Message: err.Error(), Err: err}
}

// NewTransportError wraps a send or receive failure.
func NewTransportError(err error) *Error {
	return &Error{Code: ErrCodeTransport, Message: err.Error(), Err: err}
}

// NewTimeoutError wraps a deadline failure.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Err: err}
}

// NewDeserializationError reports a body that could not be decoded into the
// declared response type.
func NewDeserializationError(statusCode int, body []byte, err error) *Error {
	return &Error{
		Code:       ErrCodeDeserialization,
		Message:    err.Error(),
		StatusCode: statusCode,
		Body:       body,
		Err:        err,
	}
}

// NewIllegalStateError reports API misuse.
func NewIllegalStateError(msg string) *Error {
	return &Error{Code: ErrCodeIllegalState, Message: msg}
}

// NewValidationError reports an invalid request or configuration value.
func NewValidationError(msg string) *Error {
	return &Error{Code: ErrCodeValidation, Message: msg}
}

// ClassifyTransportError wraps an engine failure as a timeout or transport
// error. Errors that are already classified pass through unchanged.
func ClassifyTransportError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if isTimeout(err) {
		return NewTimeoutError(err)
	}
	return NewTransportError(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsInitialization checks if an error is an initialization error.
func IsInitialization(err error) bool {
	return hasCode(err, ErrCodeInitialization)
}

// IsTransport checks if an error is a transport error. Timeouts are
// transport errors too.
func IsTransport(err error) bool {
	return hasCode(err, ErrCodeTransport) || hasCode(err, ErrCodeTimeout)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsDeserialization checks if an error is a deserialization error.
func IsDeserialization(err error) bool {
	return hasCode(err, ErrCodeDeserialization)
}

// IsIllegalState checks if an error is an illegal state error.
func IsIllegalState(err error) bool {
	return hasCode(err, ErrCodeIllegalState)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
