package talktrek

import (
	"fmt"
	"net/url"

	"github.com/talktrek/talktrek/pkg/voice"
)

// SDK-level error type that wraps voice errors
type Error = voice.Error

// Error kinds
const (
	ErrSetup      = voice.ErrSetup
	ErrChannel    = voice.ErrChannel
	ErrPermission = voice.ErrPermission
	ErrProtocol   = voice.ErrProtocol
)

// Error constructors
var (
	NewSetupError    = voice.NewSetupError
	NewChannelError  = voice.NewChannelError
	NewProtocolError = voice.NewProtocolError
)

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, etc.) while talking to the server.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from API errors (*voice.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
