package tutor

import (
	"context"

	"github.com/talktrek/talktrek/pkg/voice"
)

// Responder produces assistant replies for a conversation.
type Responder interface {
	Reply(ctx context.Context, systemInstruction string, history []Turn) (string, error)
}

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ScriptedResponder replays canned replies in order. Intended for tests
// and offline demos.
type ScriptedResponder struct {
	Replies []string

	next int
}

func (s *ScriptedResponder) Reply(ctx context.Context, systemInstruction string, history []Turn) (string, error) {
	if len(s.Replies) == 0 {
		return "", voice.NewSetupError("no scripted replies configured", nil)
	}
	reply := s.Replies[s.next%len(s.Replies)]
	s.next++
	return reply, nil
}
