package tutor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talktrek/talktrek/pkg/mission"
)

// Turn is one exchange in a session's conversation history.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// TrackedSession is the server-side state of one practice session.
type TrackedSession struct {
	ID                string
	Mission           *mission.Mission
	Language          string
	FromLanguage      string
	Mode              string
	SystemInstruction string
	StartedAt         time.Time

	mu      sync.Mutex
	history []Turn
	limit   int
}

// AppendTurn records one turn, trimming history to the configured limit.
func (s *TrackedSession) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Content: content})
	if s.limit > 0 && len(s.history) > s.limit {
		s.history = s.history[len(s.history)-s.limit:]
	}
}

// History returns a snapshot of the retained turns.
func (s *TrackedSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Tracker is the in-memory session registry.
type Tracker struct {
	historyLimit int

	mu       sync.Mutex
	sessions map[string]*TrackedSession
}

// NewTracker builds an empty registry. historyLimit bounds how many
// conversation turns each session retains.
func NewTracker(historyLimit int) *Tracker {
	return &Tracker{
		historyLimit: historyLimit,
		sessions:     make(map[string]*TrackedSession),
	}
}

// Create registers a new session with a fresh id.
func (t *Tracker) Create(m *mission.Mission, language, fromLanguage, mode, customInstruction string) *TrackedSession {
	sess := &TrackedSession{
		ID:                uuid.NewString(),
		Mission:           m,
		Language:          language,
		FromLanguage:      fromLanguage,
		Mode:              mode,
		SystemInstruction: BuildSystemInstruction(m, language, fromLanguage, mode, customInstruction),
		StartedAt:         time.Now(),
		limit:             t.historyLimit,
	}
	t.mu.Lock()
	t.sessions[sess.ID] = sess
	t.mu.Unlock()
	return sess
}

// Get looks up a session by id.
func (t *Tracker) Get(id string) (*TrackedSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	return sess, ok
}

// End removes a session and reports whether it existed.
func (t *Tracker) End(id string) (*TrackedSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[id]
	if ok {
		delete(t.sessions, id)
	}
	return sess, ok
}

// Len reports the number of active sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
