// Package session runs the lifecycle of a voice practice session: the
// setup, active, and summary phases, and the single dispatch loop that
// routes channel messages to the transcript and the playback engine.
package session

import (
	"context"

	"github.com/talktrek/talktrek/pkg/audio"
	"github.com/talktrek/talktrek/pkg/mission"
	"github.com/talktrek/talktrek/pkg/voice/transcript"
)

// Session is one active or completed practice conversation.
type Session struct {
	ID           string
	Mission      *mission.Mission
	Language     string
	FromLanguage string
	Mode         string
}

// CreateRequest configures a new session.
type CreateRequest struct {
	// MissionID selects a mission, empty for free conversation.
	MissionID string

	// Language is the language being learned.
	Language string

	// FromLanguage is the learner's native language.
	FromLanguage string

	// Mode is the learning mode id.
	Mode string
}

// Created is the server's answer to a create request.
type Created struct {
	SessionID string
	Mission   *mission.Mission
	Language  string
	Mode      string
}

// Channel is the live transport the manager dispatches from. The SDK
// channel satisfies it.
type Channel interface {
	Events() <-chan any
	SendAudio(pcm []byte, mimeType string) error
	SendText(text string) error
	SendEnd() error
	Close()
	Err() error
}

// Dialer creates server sessions and opens their channels.
type Dialer interface {
	Create(ctx context.Context, req CreateRequest) (Created, error)
	End(ctx context.Context, sessionID string) error
	Open(ctx context.Context, sessionID string) (Channel, error)
}

// Recorder is the capture pipeline the manager starts and stops.
type Recorder interface {
	Start() error
	Stop() error
	Recording() bool
}

// RecorderFactory builds a recorder whose chunks flow into the given
// sink. Called once per session so each session owns its capture.
type RecorderFactory func(sink audio.Sink) (Recorder, error)

// Speaker is the playback engine the dispatch loop feeds.
type Speaker interface {
	Speak(ctx context.Context, text, language string) error
	PlayRaw(pcm []byte)
	SetMuted(muted bool)
	Cancel()
}

// EventKind discriminates manager notifications.
type EventKind string

const (
	// EventTranscript reports a newly persisted transcript entry.
	EventTranscript EventKind = "transcript"

	// EventInterim reports updated interim user speech.
	EventInterim EventKind = "interim"

	// EventTurnComplete reports the end of an assistant turn.
	EventTurnComplete EventKind = "turn_complete"

	// EventError reports a recoverable server error.
	EventError EventKind = "error"

	// EventEnded reports the transition to the summary phase.
	EventEnded EventKind = "ended"
)

// Event is a manager notification delivered from the dispatch loop.
type Event struct {
	Kind    EventKind
	Entry   transcript.Entry
	Interim string
	Err     error
}
