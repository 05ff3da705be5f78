package restclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeInitialization, "initialization"},
		{ErrCodeTransport, "transport"},
		{ErrCodeTimeout, "timeout"},
		{ErrCodeDeserialization, "deserialization"},
		{ErrCodeIllegalState, "illegal_state"},
		{ErrCodeValidation, "validation"},
		{ErrorCode(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestError_Error(t *testing.T) {
	e := NewDeserializationError(502, []byte("<html>"), errors.New("invalid character '<'"))
	want := "restclient: deserialization (HTTP 502): invalid character '<'"
	if got := e.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	e2 := NewIllegalStateError("client is stopped")
	want2 := "restclient: illegal_state: client is stopped"
	if got := e2.Error(); got != want2 {
		t.Errorf("got %q, want %q", got, want2)
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	outer := NewTransportError(inner)
	if !errors.Is(outer, inner) {
		t.Error("errors.Is did not find the wrapped cause")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyTransportError(t *testing.T) {
	already := NewDeserializationError(200, nil, errors.New("bad"))
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"plain", errors.New("connection refused"), ErrCodeTransport},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTransport},
		{"already classified", fmt.Errorf("wrapped: %w", already), ErrCodeDeserialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTransportError(tt.err)
			if got.Code != tt.want {
				t.Errorf("code = %s, want %s", got.Code, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		want bool
	}{
		{"initialization", NewInitializationError(errors.New("x")), IsInitialization, true},
		{"transport", NewTransportError(errors.New("x")), IsTransport, true},
		{"timeout is transport", NewTimeoutError(errors.New("x")), IsTransport, true},
		{"transport is not timeout", NewTransportError(errors.New("x")), IsTimeout, false},
		{"deserialization", NewDeserializationError(200, nil, errors.New("x")), IsDeserialization, true},
		{"deserialization is not transport", NewDeserializationError(200, nil, errors.New("x")), IsTransport, false},
		{"illegal state", NewIllegalStateError("x"), IsIllegalState, true},
		{"validation", NewValidationError("x"), IsValidation, true},
		{"wrapped", fmt.Errorf("call: %w", NewTimeoutError(errors.New("x"))), IsTimeout, true},
		{"foreign error", errors.New("x"), IsTransport, false},
		{"nil", nil, IsTransport, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.is(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
