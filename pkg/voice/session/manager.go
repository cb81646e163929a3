package session

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/talktrek/talktrek/pkg/audio"
	"github.com/talktrek/talktrek/pkg/mission"
	"github.com/talktrek/talktrek/pkg/voice"
	"github.com/talktrek/talktrek/pkg/voice/protocol"
	"github.com/talktrek/talktrek/pkg/voice/transcript"
)

const endServerTimeout = 5 * time.Second

// Config wires a Manager's collaborators.
type Config struct {
	Dialer      Dialer
	NewRecorder RecorderFactory
	Speaker     Speaker
	Catalog     *mission.Catalog
	Logger      *slog.Logger

	// Notify, when set, receives events from the dispatch loop. It is
	// called from a single goroutine and must not block for long.
	Notify func(Event)
}

// Manager owns one session at a time and drives it through the setup,
// active, and summary phases. All channel messages are routed by a
// single dispatch goroutine, so transcript order is receipt order.
type Manager struct {
	dialer      Dialer
	newRecorder RecorderFactory
	speaker     Speaker
	catalog     *mission.Catalog
	logger      *slog.Logger
	notify      func(Event)

	mu         sync.Mutex
	state      State
	sess       *Session
	channel    Channel
	recorder   Recorder
	transcript *transcript.Accumulator
	dispatched chan struct{}
	lastErr    error
}

// NewManager builds a manager in the setup phase.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dialer:      cfg.Dialer,
		newRecorder: cfg.NewRecorder,
		speaker:     cfg.Speaker,
		catalog:     cfg.Catalog,
		logger:      logger,
		notify:      cfg.Notify,
		state:       StateSetup,
		transcript:  transcript.New(),
	}
}

// transitionLocked moves the lifecycle to the given phase, refusing
// moves the state machine does not allow. Callers hold m.mu.
func (m *Manager) transitionLocked(to State) bool {
	if !m.state.canTransition(to) {
		return false
	}
	m.state = to
	return true
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the session, nil while in setup.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Err returns the last channel-level error, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Transcript returns the persisted transcript entries in order.
func (m *Manager) Transcript() []transcript.Entry {
	m.mu.Lock()
	tr := m.transcript
	m.mu.Unlock()
	return tr.Entries()
}

// Interim returns the in-progress user speech preview.
func (m *Manager) Interim() string {
	m.mu.Lock()
	tr := m.transcript
	m.mu.Unlock()
	return tr.Interim()
}

// CreateSession creates a server session and opens its voice channel.
// It is only legal from the setup phase; unknown missions are rejected
// before any network call. On failure the manager stays in setup.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*Session, error) {
	m.mu.Lock()
	if m.state != StateSetup {
		state := m.state
		m.mu.Unlock()
		if state == StateActive {
			return nil, voice.NewSetupError("a session is already active", nil)
		}
		return nil, voice.NewSetupError("restart before creating a new session", nil)
	}
	m.mu.Unlock()

	if strings.TrimSpace(req.Language) == "" {
		return nil, voice.NewSetupError("language must not be empty", nil)
	}
	if req.MissionID != "" && m.catalog != nil {
		if _, ok := m.catalog.ByID(req.MissionID); !ok {
			return nil, voice.NewSetupError("unknown mission: "+req.MissionID, nil)
		}
	}

	created, err := m.dialer.Create(ctx, req)
	if err != nil {
		return nil, voice.NewSetupError("create session", err)
	}

	ch, err := m.dialer.Open(ctx, created.SessionID)
	if err != nil {
		endCtx, cancel := context.WithTimeout(context.Background(), endServerTimeout)
		defer cancel()
		if endErr := m.dialer.End(endCtx, created.SessionID); endErr != nil {
			m.logger.Warn("cleanup of half-created session failed", "session_id", created.SessionID, "error", endErr)
		}
		return nil, voice.NewSetupError("open voice channel", err)
	}

	sess := &Session{
		ID:           created.SessionID,
		Mission:      created.Mission,
		Language:     created.Language,
		FromLanguage: req.FromLanguage,
		Mode:         created.Mode,
	}
	if sess.Language == "" {
		sess.Language = req.Language
	}
	if sess.Mode == "" {
		sess.Mode = req.Mode
	}

	var rec Recorder
	if m.newRecorder != nil {
		rec, err = m.newRecorder(func(chunk audio.Chunk) error {
			return ch.SendAudio(chunk.Data, chunk.MimeType)
		})
		if err != nil {
			ch.Close()
			endCtx, cancel := context.WithTimeout(context.Background(), endServerTimeout)
			defer cancel()
			_ = m.dialer.End(endCtx, created.SessionID)
			return nil, voice.NewSetupError("init recorder", err)
		}
	}

	m.mu.Lock()
	if !m.transitionLocked(StateActive) {
		m.mu.Unlock()
		ch.Close()
		endCtx, cancel := context.WithTimeout(context.Background(), endServerTimeout)
		defer cancel()
		_ = m.dialer.End(endCtx, created.SessionID)
		return nil, voice.NewSetupError("a session is already active", nil)
	}
	m.sess = sess
	m.channel = ch
	m.recorder = rec
	m.transcript = transcript.New()
	m.lastErr = nil
	m.dispatched = make(chan struct{})
	tr := m.transcript
	done := m.dispatched
	m.mu.Unlock()

	m.logger.Info("session started",
		"session_id", sess.ID,
		"language", sess.Language,
		"mode", sess.Mode,
	)

	go m.dispatch(ch, tr, sess, done)
	return sess, nil
}

// StartRecording begins microphone capture for the active session.
func (m *Manager) StartRecording() error {
	m.mu.Lock()
	rec, state := m.recorder, m.state
	m.mu.Unlock()

	if state != StateActive {
		return voice.NewSetupError("no active session", nil)
	}
	if rec == nil {
		return voice.NewSetupError("session has no recorder", nil)
	}
	return rec.Start()
}

// StopRecording stops capture and flushes buffered audio to the server.
func (m *Manager) StopRecording() error {
	m.mu.Lock()
	rec := m.recorder
	m.mu.Unlock()

	if rec == nil {
		return nil
	}
	return rec.Stop()
}

// Recording reports whether the microphone is live.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	rec := m.recorder
	m.mu.Unlock()
	return rec != nil && rec.Recording()
}

// SendText sends a typed user message into the active session. The
// server does not echo typed text back, so the entry is persisted
// locally once the send succeeds.
func (m *Manager) SendText(text string) error {
	m.mu.Lock()
	ch, tr, state := m.channel, m.transcript, m.state
	m.mu.Unlock()

	if state != StateActive || ch == nil {
		return voice.NewSetupError("no active session", nil)
	}
	if err := ch.SendText(text); err != nil {
		return err
	}
	entry := tr.AppendUserText(text)
	m.emit(Event{Kind: EventTranscript, Entry: entry})
	return nil
}

// SetMuted toggles assistant playback. Muting cancels in-flight speech.
func (m *Manager) SetMuted(muted bool) {
	if m.speaker != nil {
		m.speaker.SetMuted(muted)
	}
}

// EndSession moves an active session to the summary phase. It stops
// capture and playback before touching the channel, tells the server,
// and never returns an error; ending an already-ended session is a
// no-op.
func (m *Manager) EndSession() {
	m.mu.Lock()
	if !m.transitionLocked(StateSummary) {
		m.mu.Unlock()
		return
	}
	sess := m.sess
	ch := m.channel
	rec := m.recorder
	m.channel = nil
	m.recorder = nil
	m.mu.Unlock()

	// Audio first so no chunk races the closing channel.
	if rec != nil {
		if err := rec.Stop(); err != nil {
			m.logger.Debug("recorder stop during end", "error", err)
		}
	}
	if m.speaker != nil {
		m.speaker.Cancel()
	}

	if ch != nil {
		if err := ch.SendEnd(); err != nil {
			m.logger.Debug("send end", "error", err)
		}
		ch.Close()
	}

	if sess != nil {
		endCtx, cancel := context.WithTimeout(context.Background(), endServerTimeout)
		defer cancel()
		if err := m.dialer.End(endCtx, sess.ID); err != nil {
			m.logger.Debug("server end", "session_id", sess.ID, "error", err)
		}
		m.logger.Info("session ended", "session_id", sess.ID)
	}

	m.emit(Event{Kind: EventEnded})
}

// Restart leaves the summary phase and returns to setup with a clean
// transcript and no mission. Restarting from setup is a no-op.
func (m *Manager) Restart() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSetup {
		return nil
	}
	if !m.transitionLocked(StateSetup) {
		return voice.NewSetupError("end the session before restarting", nil)
	}
	m.sess = nil
	m.lastErr = nil
	m.transcript = transcript.New()
	return nil
}

// dispatch is the sole consumer of channel events. It runs until the
// channel closes and routes every message in receipt order.
func (m *Manager) dispatch(ch Channel, tr *transcript.Accumulator, sess *Session, done chan struct{}) {
	defer close(done)

	for msg := range ch.Events() {
		switch msg := msg.(type) {
		case protocol.InputTranscriptMessage:
			entry, final := tr.AcceptUserSpeech(msg.Text, msg.IsFinal)
			if final {
				m.emit(Event{Kind: EventTranscript, Entry: entry})
			} else {
				m.emit(Event{Kind: EventInterim, Interim: tr.Interim()})
			}

		case protocol.TextMessage:
			entry, ok := tr.AcceptAssistant(msg.Data)
			if !ok {
				continue
			}
			m.emit(Event{Kind: EventTranscript, Entry: entry})
			if m.speaker != nil {
				go func(text, language string) {
					if err := m.speaker.Speak(context.Background(), text, language); err != nil {
						m.logger.Warn("speak failed", "error", err)
					}
				}(msg.Data, sess.Language)
			}

		case protocol.OutputTranscriptMessage:
			if !msg.IsFinal {
				continue
			}
			if entry, ok := tr.AcceptAssistant(msg.Text); ok {
				m.emit(Event{Kind: EventTranscript, Entry: entry})
			}

		case protocol.AudioMessage:
			if m.speaker == nil {
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				m.logger.Warn("undecodable audio frame", "error", err)
				continue
			}
			m.speaker.PlayRaw(pcm)

		case protocol.TurnCompleteMessage:
			tr.MarkTurnComplete()
			m.emit(Event{Kind: EventTurnComplete})

		case protocol.ErrorMessage:
			// Server errors are surfaced but do not end the session.
			m.logger.Warn("server error", "message", msg.Message)
			m.emit(Event{Kind: EventError, Err: voice.NewChannelError(msg.Message, nil)})

		case protocol.SessionEndedMessage:
			m.EndSession()

		case protocol.UnknownMessage:
			m.logger.Debug("unknown message type", "type", msg.Type)
			m.emit(Event{Kind: EventError, Err: voice.NewProtocolError("unknown message type", msg.Type)})

		case *protocol.DecodeError:
			m.logger.Warn("malformed frame", "error", msg)
			m.emit(Event{Kind: EventError, Err: voice.NewProtocolError(msg.Message, msg.Param)})
		}
	}

	if err := ch.Err(); err != nil {
		m.mu.Lock()
		if m.lastErr == nil {
			m.lastErr = err
		}
		m.mu.Unlock()
		m.emit(Event{Kind: EventError, Err: err})
	}

	// A channel that dies mid-conversation still lands in summary.
	m.EndSession()
}

func (m *Manager) emit(event Event) {
	if m.notify != nil {
		m.notify(event)
	}
}
