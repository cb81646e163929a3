package talktrek

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talktrek/talktrek/pkg/voice"
	"github.com/talktrek/talktrek/pkg/voice/protocol"
)

const defaultChannelConnectTimeout = 15 * time.Second

// Channel is a live voice WebSocket session with the practice server.
//
// A single read loop owns the socket and delivers decoded server
// messages on Events() in receipt order. Malformed frames are delivered
// as *protocol.DecodeError values and do not stop the loop. Sends are
// serialized and fail loudly once the channel is closed; Close is best
// effort and never returns an error.
type Channel struct {
	conn      *websocket.Conn
	sessionID string

	events chan any
	done   chan struct{}
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// OpenChannel dials the voice WebSocket for an existing session. The
// server greets with a connected message before any other traffic;
// OpenChannel consumes it and fails when the greeting does not arrive.
func (c *Client) OpenChannel(ctx context.Context, sessionID string) (*Channel, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, voice.NewSetupError("session id must not be empty", nil)
	}

	wsURL, err := c.webSocketEndpoint("/ws/voice/" + sessionID)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultChannelConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultChannelConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, voice.NewChannelError("read connected greeting", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	first, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, voice.NewChannelError("decode connected greeting", err)
	}
	connected, ok := first.(protocol.ConnectedMessage)
	if !ok {
		_ = conn.Close()
		if errMsg, isErr := first.(protocol.ErrorMessage); isErr {
			return nil, voice.NewChannelError(errMsg.Message, nil)
		}
		return nil, voice.NewChannelError(fmt.Sprintf("expected connected greeting, got %T", first), nil)
	}
	if connected.SessionID != "" && connected.SessionID != sessionID {
		_ = conn.Close()
		return nil, voice.NewChannelError("connected greeting for wrong session", nil)
	}

	ch := &Channel{
		conn:      conn,
		sessionID: sessionID,
		events:    make(chan any, 256),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

func (c *Client) webSocketEndpoint(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", voice.NewSetupError("invalid base URL", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", voice.NewSetupError("base URL must use http(s) or ws(s)", nil)
	}
	return u.String(), nil
}

// SessionID returns the session this channel belongs to.
func (ch *Channel) SessionID() string {
	return ch.sessionID
}

// Events yields decoded server messages in the order they arrived.
// The channel is closed when the read loop exits; check Err() for the
// reason.
func (ch *Channel) Events() <-chan any {
	if ch == nil {
		return nil
	}
	return ch.events
}

// SendAudio sends one chunk of captured audio. An empty mimeType is sent
// as the default PCM descriptor.
func (ch *Channel) SendAudio(pcm []byte, mimeType string) error {
	if strings.TrimSpace(mimeType) == "" {
		mimeType = protocol.DefaultAudioMimeType
	}
	msg := protocol.NewAudioMessage(base64.StdEncoding.EncodeToString(pcm), mimeType)
	return ch.send(msg)
}

// SendText sends a typed user message.
func (ch *Channel) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return voice.NewProtocolError("text must not be empty", "data")
	}
	return ch.send(protocol.NewTextMessage(text))
}

// SendEnd asks the server to finish the session gracefully.
func (ch *Channel) SendEnd() error {
	return ch.send(protocol.NewEndMessage())
}

func (ch *Channel) send(msg any) error {
	if ch == nil {
		return voice.NewChannelError("channel must not be nil", nil)
	}
	if ch.closed.Load() {
		return voice.NewChannelError("channel is closed", nil)
	}
	payload, err := protocol.Encode(msg)
	if err != nil {
		return voice.NewProtocolError(err.Error(), "")
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return voice.NewChannelError("write frame", err)
	}
	return nil
}

// Close closes the websocket. Safe to call any number of times and never
// returns an error.
func (ch *Channel) Close() {
	if ch == nil {
		return
	}
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)
		close(ch.stop)
		ch.writeMu.Lock()
		_ = ch.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		ch.writeMu.Unlock()
		_ = ch.conn.Close()
	})
	<-ch.done
}

// Err returns the terminal channel error, if any. It blocks until the
// read loop exits.
func (ch *Channel) Err() error {
	if ch == nil {
		return nil
	}
	<-ch.done
	ch.errMu.Lock()
	defer ch.errMu.Unlock()
	return ch.err
}

func (ch *Channel) setErr(err error) {
	if err == nil {
		return
	}
	ch.errMu.Lock()
	defer ch.errMu.Unlock()
	if ch.err == nil {
		ch.err = err
	}
}

func (ch *Channel) readLoop() {
	defer close(ch.done)
	defer close(ch.events)

	for {
		messageType, data, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ch.closed.Load() {
				return
			}
			ch.setErr(voice.NewChannelError("connection lost", err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			// A single malformed frame does not poison the channel. Surface
			// it to the consumer and keep reading.
			ch.emit(err)
			continue
		}
		ch.emit(msg)
	}
}

// emit delivers in order; it blocks rather than dropping so consumers
// see every message, and unblocks when the channel is closed.
func (ch *Channel) emit(msg any) {
	if msg == nil {
		return
	}
	select {
	case ch.events <- msg:
	case <-ch.stop:
	}
}
