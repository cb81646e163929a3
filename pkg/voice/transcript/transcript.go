// Package transcript maintains the ordered conversation log of a voice
// session. Entries are appended in acceptance order and never reordered,
// mutated, or deleted.
package transcript

import (
	"strings"
	"sync"
)

// Role identifies which side of the conversation produced an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one accepted conversation turn. Immutable once created.
type Entry struct {
	Role     Role
	Text     string
	IsFinal  bool
	Sequence uint64
}

// Accumulator merges the inbound user-transcript stream, the assistant
// reply stream, and locally typed user messages into one ordered log.
//
// User speech entries are persisted only from final recognition events;
// interim events update a volatile preview that a UI may render but that
// never enters the log. Assistant entries are accepted immediately.
type Accumulator struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64

	interim string

	// Assistant turns can arrive twice from text-fallback backends: once
	// as a `text` message and once as an `output_transcript` with the same
	// content. The duplicate within one turn is dropped.
	lastAssistant string
	turnOpen      bool
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// AcceptUserSpeech processes one inbound input_transcript event. Interim
// events (isFinal=false) only update the preview; the final event becomes
// the user entry of record. Returns the appended entry and true when an
// entry was persisted.
func (a *Accumulator) AcceptUserSpeech(text string, isFinal bool) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !isFinal {
		a.interim = text
		return Entry{}, false
	}
	a.interim = ""
	return a.appendLocked(RoleUser, text), true
}

// AcceptAssistant processes one inbound assistant reply. Returns false
// when the text is a duplicate of the assistant turn already accepted
// since the last turn boundary.
func (a *Accumulator) AcceptAssistant(text string) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.turnOpen && strings.TrimSpace(text) == strings.TrimSpace(a.lastAssistant) {
		return Entry{}, false
	}
	a.lastAssistant = text
	a.turnOpen = true
	return a.appendLocked(RoleAssistant, text), true
}

// AppendUserText records a locally originated typed user message.
func (a *Accumulator) AppendUserText(text string) Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.appendLocked(RoleUser, text)
}

// MarkTurnComplete closes the current assistant turn; the next assistant
// reply is accepted even if its text repeats the previous turn.
func (a *Accumulator) MarkTurnComplete() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.turnOpen = false
}

func (a *Accumulator) appendLocked(role Role, text string) Entry {
	a.seq++
	entry := Entry{Role: role, Text: text, IsFinal: true, Sequence: a.seq}
	a.entries = append(a.entries, entry)
	return entry
}

// Interim returns the latest non-persisted recognition preview.
func (a *Accumulator) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// Entries returns a snapshot of the log in acceptance order.
func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Len returns the number of persisted entries.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Clear discards all entries and the interim preview. Used by the session
// restart action; sequence numbers keep increasing so that entries from
// different session instances never collide.
func (a *Accumulator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.interim = ""
	a.lastAssistant = ""
	a.turnOpen = false
}
