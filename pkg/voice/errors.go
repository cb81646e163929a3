// Package voice holds the shared types of the real-time voice session
// engine: the error taxonomy and the session channel events consumed by
// the lifecycle manager.
package voice

import (
	"fmt"
)

// Error is a voice session error.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind categorizes voice session errors.
type ErrorKind string

const (
	// ErrSetup covers session creation failures: rejection by the remote
	// endpoint, validation failures, network unreachable. The session stays
	// in the setup state.
	ErrSetup ErrorKind = "setup_error"
	// ErrChannel covers connection drops and transport-level send/receive
	// failures on an established channel.
	ErrChannel ErrorKind = "channel_error"
	// ErrPermission covers microphone access denial and other device-level
	// refusals. Capture never starts; session state is unaffected.
	ErrPermission ErrorKind = "permission_error"
	// ErrProtocol covers inbound messages of unrecognized type or shape.
	// Surfaced, never fatal to the channel handler.
	ErrProtocol ErrorKind = "protocol_error"
)

// NewSetupError creates a setup error.
func NewSetupError(message string, err error) *Error {
	return &Error{Kind: ErrSetup, Message: message, Err: err}
}

// NewChannelError creates a channel error.
func NewChannelError(message string, err error) *Error {
	return &Error{Kind: ErrChannel, Message: message, Err: err}
}

// NewPermissionError creates a permission error.
func NewPermissionError(message string, err error) *Error {
	return &Error{Kind: ErrPermission, Message: message, Err: err}
}

// NewProtocolError creates a protocol error.
func NewProtocolError(message, param string) *Error {
	return &Error{Kind: ErrProtocol, Message: message, Param: param}
}

// IsFatal reports whether the error leaves the channel unusable, forcing
// the session to the summary state. Protocol and permission errors are
// always recoverable in place.
func (e *Error) IsFatal() bool {
	return e.Kind == ErrChannel
}
