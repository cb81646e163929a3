// Package protocol defines the wire schema of the voice channel: the
// tagged-union messages exchanged over the persistent WebSocket between
// the client and the tutoring backend. Messages are ephemeral; they are
// constructed, sent or received, and discarded.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message type tags. The `type` field discriminates the payload shape.
const (
	// Outbound (client -> server).
	TypeAudio = "audio"
	TypeText  = "text"
	TypeEnd   = "end"

	// Inbound (server -> client). TypeText and TypeAudio also occur inbound:
	// the assistant reply text and, on audio-capable backends, synthesized
	// assistant audio.
	TypeConnected        = "connected"
	TypeInputTranscript  = "input_transcript"
	TypeOutputTranscript = "output_transcript"
	TypeTurnComplete     = "turn_complete"
	TypeError            = "error"
	TypeSessionEnded     = "session_ended"
)

// DefaultAudioMimeType is assumed for audio frames that omit mime_type.
const DefaultAudioMimeType = "audio/pcm;rate=16000"

// DecodeError reports a malformed frame. It never results from an unknown
// message type; unknown types decode to UnknownMessage so that new server
// message types do not break older clients.
type DecodeError struct {
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Message: message, Param: param}
}

// AudioMessage carries one captured utterance (outbound) or one synthesized
// assistant utterance (inbound), base64-encoded with its MIME descriptor.
type AudioMessage struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// NewAudioMessage builds an outbound audio message.
func NewAudioMessage(dataB64, mimeType string) AudioMessage {
	return AudioMessage{Type: TypeAudio, Data: dataB64, MimeType: mimeType}
}

// TextMessage carries typed user input (outbound) or the assistant reply
// (inbound).
type TextMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// NewTextMessage builds an outbound text message.
func NewTextMessage(text string) TextMessage {
	return TextMessage{Type: TypeText, Data: text}
}

// EndMessage is the client-initiated graceful termination request.
type EndMessage struct {
	Type string `json:"type"`
}

// NewEndMessage builds an outbound end message.
func NewEndMessage() EndMessage {
	return EndMessage{Type: TypeEnd}
}

// ConnectedMessage signals the channel is ready; capture may begin.
type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// InputTranscriptMessage carries recognized user speech. Only frames with
// IsFinal set are persisted to the transcript; interim frames may be
// rendered but are not the entry of record.
type InputTranscriptMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// OutputTranscriptMessage carries the assistant reply transcript.
type OutputTranscriptMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// TurnCompleteMessage is advisory; no required action beyond logging.
type TurnCompleteMessage struct {
	Type string `json:"type"`
}

// ErrorMessage surfaces a non-fatal server-side condition. The channel
// remains open unless the server follows with a closure.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SessionEndedMessage forces the session to the summary state.
type SessionEndedMessage struct {
	Type string `json:"type"`
}

// UnknownMessage preserves a frame of unrecognized type for forward
// compatibility. Callers surface it as a protocol error and carry on.
type UnknownMessage struct {
	Type string
	Raw  json.RawMessage
}

// Encode marshals any channel message to its wire form.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode channel message: %w", err)
	}
	return data, nil
}

// DecodeServerMessage decodes one inbound frame into its typed message.
// Unknown types return UnknownMessage, nil; malformed frames return a
// *DecodeError.
func DecodeServerMessage(data []byte) (any, error) {
	typ, err := frameType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeConnected:
		var msg ConnectedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid connected frame", "")
		}
		return msg, nil
	case TypeInputTranscript:
		var msg InputTranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid input_transcript frame", "")
		}
		return msg, nil
	case TypeOutputTranscript:
		var msg OutputTranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid output_transcript frame", "")
		}
		return msg, nil
	case TypeText:
		var msg TextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid text frame", "")
		}
		return msg, nil
	case TypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badFrame("audio.data is required", "data")
		}
		return msg, nil
	case TypeTurnComplete:
		return TurnCompleteMessage{Type: typ}, nil
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid error frame", "")
		}
		return msg, nil
	case TypeSessionEnded:
		return SessionEndedMessage{Type: typ}, nil
	default:
		return UnknownMessage{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

// DecodeClientMessage decodes one outbound-direction frame as received by
// the server side, validating required fields.
func DecodeClientMessage(data []byte) (any, error) {
	typ, err := frameType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badFrame("audio.data is required", "data")
		}
		if strings.TrimSpace(msg.MimeType) == "" {
			msg.MimeType = DefaultAudioMimeType
		}
		return msg, nil
	case TypeText:
		var msg TextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badFrame("invalid text frame", "")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badFrame("text.data is required", "data")
		}
		return msg, nil
	case TypeEnd:
		return EndMessage{Type: typ}, nil
	default:
		return nil, badFrame("unsupported message type", "type")
	}
}

func frameType(data []byte) (string, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", badFrame("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return "", badFrame("missing type", "type")
	}
	return typ, nil
}
