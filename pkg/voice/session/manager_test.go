package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talktrek/talktrek/pkg/audio"
	"github.com/talktrek/talktrek/pkg/mission"
	"github.com/talktrek/talktrek/pkg/voice"
	"github.com/talktrek/talktrek/pkg/voice/protocol"
	"github.com/talktrek/talktrek/pkg/voice/transcript"
)

type fakeChannel struct {
	events chan any

	mu        sync.Mutex
	sentAudio [][]byte
	sentText  []string
	endSent   bool
	closed    bool
	err       error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan any, 64)}
}

func (c *fakeChannel) Events() <-chan any { return c.events }

func (c *fakeChannel) SendAudio(pcm []byte, mimeType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return voice.NewChannelError("channel is closed", nil)
	}
	c.sentAudio = append(c.sentAudio, append([]byte(nil), pcm...))
	return nil
}

func (c *fakeChannel) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return voice.NewChannelError("channel is closed", nil)
	}
	c.sentText = append(c.sentText, text)
	return nil
}

func (c *fakeChannel) SendEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return voice.NewChannelError("channel is closed", nil)
	}
	c.endSent = true
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

type fakeDialer struct {
	mu      sync.Mutex
	channel *fakeChannel
	creates int
	ends    []string
	failure error
}

func (d *fakeDialer) Create(ctx context.Context, req CreateRequest) (Created, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failure != nil {
		return Created{}, d.failure
	}
	d.creates++
	return Created{SessionID: "sess_1", Language: req.Language, Mode: req.Mode}, nil
}

func (d *fakeDialer) End(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ends = append(d.ends, sessionID)
	return nil
}

func (d *fakeDialer) Open(ctx context.Context, sessionID string) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channel == nil {
		d.channel = newFakeChannel()
	}
	return d.channel, nil
}

type fakeRecorder struct {
	sink audio.Sink

	mu        sync.Mutex
	recording bool
	starts    int
	stops     int
}

func (r *fakeRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return nil
	}
	r.recording = true
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	r.recording = false
	r.stops++
	return nil
}

func (r *fakeRecorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	raw    int
	muted  bool
	cancel int
}

func (s *fakeSpeaker) Speak(ctx context.Context, text, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return nil
	}
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSpeaker) PlayRaw(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw++
}

func (s *fakeSpeaker) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *fakeSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel++
}

type testRig struct {
	manager  *Manager
	dialer   *fakeDialer
	recorder *fakeRecorder
	speaker  *fakeSpeaker
	events   chan Event
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		dialer:  &fakeDialer{},
		speaker: &fakeSpeaker{},
		events:  make(chan Event, 64),
	}
	rig.manager = NewManager(Config{
		Dialer: rig.dialer,
		NewRecorder: func(sink audio.Sink) (Recorder, error) {
			rig.recorder = &fakeRecorder{sink: sink}
			return rig.recorder, nil
		},
		Speaker: rig.speaker,
		Catalog: mission.Default(),
		Notify:  func(e Event) { rig.events <- e },
	})
	return rig
}

func (rig *testRig) start(t *testing.T) *Session {
	t.Helper()
	sess, err := rig.manager.CreateSession(context.Background(), CreateRequest{
		Language:     "Spanish",
		FromLanguage: "English",
		Mode:         "teacher",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func (rig *testRig) waitEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-rig.events:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestCreateSessionEntersActive(t *testing.T) {
	rig := newTestRig(t)
	sess := rig.start(t)

	if rig.manager.State() != StateActive {
		t.Fatalf("state = %v, want active", rig.manager.State())
	}
	if sess.ID != "sess_1" || sess.Language != "Spanish" {
		t.Fatalf("session = %+v", sess)
	}
	rig.manager.EndSession()
}

func TestCreateSessionRejectsUnknownMissionBeforeNetwork(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.manager.CreateSession(context.Background(), CreateRequest{
		MissionID: "no-such-mission",
		Language:  "Spanish",
		Mode:      "teacher",
	})
	if err == nil {
		t.Fatal("expected unknown mission error")
	}
	if rig.dialer.creates != 0 {
		t.Fatal("mission gate must run before any network call")
	}
	if rig.manager.State() != StateSetup {
		t.Fatalf("state = %v, want setup after failed create", rig.manager.State())
	}
}

func TestCreateSessionWhileActiveFails(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)
	defer rig.manager.EndSession()

	if _, err := rig.manager.CreateSession(context.Background(), CreateRequest{Language: "French", Mode: "teacher"}); err == nil {
		t.Fatal("expected error creating a second session while active")
	}
}

func TestDispatchRoutesTranscriptInReceiptOrder(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.events <- protocol.InputTranscriptMessage{Type: "input_transcript", Text: "Hola", IsFinal: true}
	ch.events <- protocol.TextMessage{Type: "text", Data: "¡Hola! ¿Cómo estás?"}
	ch.events <- protocol.TurnCompleteMessage{Type: "turn_complete"}

	rig.waitEvent(t, EventTurnComplete)

	entries := rig.manager.Transcript()
	if len(entries) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(entries))
	}
	if entries[0].Role != transcript.RoleUser || entries[0].Text != "Hola" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Role != transcript.RoleAssistant || entries[1].Text != "¡Hola! ¿Cómo estás?" {
		t.Fatalf("second entry = %+v", entries[1])
	}
	if entries[1].Sequence <= entries[0].Sequence {
		t.Fatal("sequence numbers must be strictly increasing")
	}
	rig.manager.EndSession()
}

func TestInterimTranscriptIsNotPersisted(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.events <- protocol.InputTranscriptMessage{Type: "input_transcript", Text: "Ho", IsFinal: false}
	rig.waitEvent(t, EventInterim)

	if len(rig.manager.Transcript()) != 0 {
		t.Fatal("interim speech must not be persisted")
	}
	if rig.manager.Interim() != "Ho" {
		t.Fatalf("interim = %q", rig.manager.Interim())
	}
	rig.manager.EndSession()
}

func TestDuplicateOutputTranscriptIsDropped(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.events <- protocol.TextMessage{Type: "text", Data: "Muy bien"}
	ch.events <- protocol.OutputTranscriptMessage{Type: "output_transcript", Text: "Muy bien", IsFinal: true}
	ch.events <- protocol.TurnCompleteMessage{Type: "turn_complete"}

	rig.waitEvent(t, EventTurnComplete)

	entries := rig.manager.Transcript()
	if len(entries) != 1 {
		t.Fatalf("transcript has %d entries, want 1 (duplicate dropped)", len(entries))
	}
	rig.manager.EndSession()
}

func TestAssistantTextTriggersPlayback(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.events <- protocol.TextMessage{Type: "text", Data: "Bienvenido"}
	rig.waitEvent(t, EventTranscript)

	deadline := time.After(2 * time.Second)
	for {
		rig.speaker.mu.Lock()
		n := len(rig.speaker.spoken)
		rig.speaker.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("assistant text was not spoken")
		case <-time.After(5 * time.Millisecond):
		}
	}
	rig.manager.EndSession()
}

func TestEndSessionIsIdempotentAndOrdersCleanup(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	if err := rig.manager.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}

	rig.manager.EndSession()
	rig.manager.EndSession()
	rig.manager.EndSession()

	if rig.manager.State() != StateSummary {
		t.Fatalf("state = %v, want summary", rig.manager.State())
	}
	if rig.recorder.Recording() {
		t.Fatal("recorder must be stopped by EndSession")
	}
	rig.speaker.mu.Lock()
	cancels := rig.speaker.cancel
	rig.speaker.mu.Unlock()
	if cancels == 0 {
		t.Fatal("playback must be cancelled by EndSession")
	}
	if rig.recorder.stops != 1 {
		t.Fatalf("recorder stopped %d times, want 1", rig.recorder.stops)
	}
	if len(rig.dialer.ends) != 1 {
		t.Fatalf("server end called %d times, want 1", len(rig.dialer.ends))
	}
}

func TestServerSessionEndedForcesSummary(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	rig.dialer.channel.events <- protocol.SessionEndedMessage{Type: "session_ended"}
	rig.waitEvent(t, EventEnded)

	if rig.manager.State() != StateSummary {
		t.Fatalf("state = %v, want summary", rig.manager.State())
	}
}

func TestChannelFailureLandsInSummaryWithError(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.mu.Lock()
	ch.err = voice.NewChannelError("connection lost", errors.New("eof"))
	ch.mu.Unlock()
	ch.Close()

	rig.waitEvent(t, EventEnded)
	if rig.manager.State() != StateSummary {
		t.Fatalf("state = %v, want summary", rig.manager.State())
	}
	if rig.manager.Err() == nil {
		t.Fatal("channel failure must be recorded")
	}
}

func TestServerErrorMessageDoesNotEndSession(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	rig.dialer.channel.events <- protocol.ErrorMessage{Type: "error", Message: "speech service hiccup"}
	e := rig.waitEvent(t, EventError)
	if e.Err == nil {
		t.Fatal("error event must carry the error")
	}
	if rig.manager.State() != StateActive {
		t.Fatalf("state = %v, want active after recoverable error", rig.manager.State())
	}
	rig.manager.EndSession()
}

func TestRestartOnlyFromSummary(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	if err := rig.manager.Restart(); err == nil {
		t.Fatal("restart must be rejected while active")
	}

	rig.dialer.channel.events <- protocol.TextMessage{Type: "text", Data: "Adiós"}
	rig.waitEvent(t, EventTranscript)
	rig.manager.EndSession()

	if err := rig.manager.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if rig.manager.State() != StateSetup {
		t.Fatalf("state = %v, want setup", rig.manager.State())
	}
	if len(rig.manager.Transcript()) != 0 {
		t.Fatal("restart must clear the transcript")
	}
	if rig.manager.Current() != nil {
		t.Fatal("restart must clear the session")
	}
}

func TestSendTextRequiresActiveSession(t *testing.T) {
	rig := newTestRig(t)

	if err := rig.manager.SendText("hola"); err == nil {
		t.Fatal("expected error sending text with no session")
	}

	rig.start(t)
	if err := rig.manager.SendText("hola"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	rig.dialer.channel.mu.Lock()
	sent := len(rig.dialer.channel.sentText)
	rig.dialer.channel.mu.Unlock()
	if sent != 1 {
		t.Fatalf("channel saw %d text sends, want 1", sent)
	}
	rig.manager.EndSession()
}

func TestSendTextPersistsUserEntry(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	// Typed text is not echoed back by the server, so the manager
	// records the user entry itself.
	if err := rig.manager.SendText("¿Dónde está la biblioteca?"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	e := rig.waitEvent(t, EventTranscript)
	if e.Entry.Role != transcript.RoleUser || e.Entry.Text != "¿Dónde está la biblioteca?" {
		t.Fatalf("entry = %+v", e.Entry)
	}

	ch := rig.dialer.channel
	ch.events <- protocol.TextMessage{Type: "text", Data: "Está en la esquina."}
	ch.events <- protocol.TurnCompleteMessage{Type: "turn_complete"}
	rig.waitEvent(t, EventTurnComplete)

	entries := rig.manager.Transcript()
	if len(entries) != 2 {
		t.Fatalf("transcript has %d entries, want 2", len(entries))
	}
	if entries[0].Role != transcript.RoleUser || entries[0].Text != "¿Dónde está la biblioteca?" {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Role != transcript.RoleAssistant {
		t.Fatalf("second entry = %+v", entries[1])
	}
	rig.manager.EndSession()
}

func TestMalformedFrameIsReportedNotFatal(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	ch := rig.dialer.channel
	ch.events <- &protocol.DecodeError{Message: "invalid text frame"}
	ch.events <- protocol.TurnCompleteMessage{Type: "turn_complete"}

	e := rig.waitEvent(t, EventError)
	verr, ok := e.Err.(*voice.Error)
	if !ok || verr.Kind != voice.ErrProtocol {
		t.Fatalf("err = %v, want protocol error", e.Err)
	}
	rig.waitEvent(t, EventTurnComplete)
	if rig.manager.State() != StateActive {
		t.Fatalf("state = %v, want active after malformed frame", rig.manager.State())
	}
	rig.manager.EndSession()
}

func TestUnknownMessageReportsProtocolError(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	rig.dialer.channel.events <- protocol.UnknownMessage{Type: "weather_update"}
	e := rig.waitEvent(t, EventError)
	verr, ok := e.Err.(*voice.Error)
	if !ok || verr.Kind != voice.ErrProtocol {
		t.Fatalf("err = %v, want protocol error", e.Err)
	}
	if verr.Param != "weather_update" {
		t.Fatalf("param = %q, want the unknown type tag", verr.Param)
	}
	if rig.manager.State() != StateActive {
		t.Fatalf("state = %v, want active after unknown message", rig.manager.State())
	}
	rig.manager.EndSession()
}

func TestMicChunksFlowToChannel(t *testing.T) {
	rig := newTestRig(t)
	rig.start(t)

	// The recorder factory binds the sink to the channel; pushing a
	// chunk through it must reach SendAudio.
	if err := rig.recorder.sink(audio.Chunk{Data: []byte{1, 2}, MimeType: audio.DefaultMimeType}); err != nil {
		t.Fatalf("sink: %v", err)
	}
	rig.dialer.channel.mu.Lock()
	n := len(rig.dialer.channel.sentAudio)
	rig.dialer.channel.mu.Unlock()
	if n != 1 {
		t.Fatalf("channel saw %d audio sends, want 1", n)
	}
	rig.manager.EndSession()
}
