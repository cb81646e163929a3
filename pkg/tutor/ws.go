package tutor

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talktrek/talktrek/pkg/voice/protocol"
)

// wsConn serializes writes to one voice socket.
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeError(message string) {
	_ = c.writeJSON(map[string]string{"type": protocol.TypeError, "message": message})
}

// handleVoiceSocket runs one live voice conversation. The session must
// already exist; the socket greets with a connected message and then
// answers audio, text, and end messages until the client disconnects.
func (s *Server) handleVoiceSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.cfg.MaxJSONFrameBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxJSONFrameBytes)
	}
	ws := &wsConn{conn: conn, timeout: s.cfg.WSWriteTimeout}

	sess, ok := s.tracker.Get(sessionID)
	if !ok {
		ws.writeError("Session not found. Create a session first via POST /api/voice/session")
		return
	}

	if err := ws.writeJSON(map[string]string{
		"type":       protocol.TypeConnected,
		"session_id": sessionID,
	}); err != nil {
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// Client gone without a clean end: drop the session.
			if _, ok := s.tracker.End(sessionID); ok {
				s.metrics.RecordSessionEnd(time.Since(sess.StartedAt))
				s.logger.Info("session dropped", "session_id", sessionID)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				ws.writeError(decodeErr.Message)
				continue
			}
			ws.writeError("malformed message")
			continue
		}

		switch msg := msg.(type) {
		case protocol.AudioMessage:
			s.processAudio(r.Context(), ws, sess, msg)

		case protocol.TextMessage:
			reply, err := s.generateReply(r.Context(), sess, msg.Data)
			if err != nil {
				s.metrics.RecordError("reply")
				ws.writeError(err.Error())
				continue
			}
			s.metrics.RecordTurn("text")
			_ = ws.writeJSON(map[string]string{"type": protocol.TypeText, "data": reply})
			_ = ws.writeJSON(map[string]string{"type": protocol.TypeTurnComplete})

		case protocol.EndMessage:
			if _, ok := s.tracker.End(sessionID); ok {
				s.metrics.RecordSessionEnd(time.Since(sess.StartedAt))
				s.logger.Info("session ended", "session_id", sessionID)
			}
			_ = ws.writeJSON(map[string]string{"type": protocol.TypeSessionEnded})
			return
		}
	}
}

// processAudio runs one voice turn: transcription, reply, and the
// transcript frames the client persists.
func (s *Server) processAudio(ctx context.Context, ws *wsConn, sess *TrackedSession, msg protocol.AudioMessage) {
	if s.transcriber == nil {
		ws.writeError("speech recognition is not configured")
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		ws.writeError("audio data is not valid base64")
		return
	}
	if s.cfg.MaxAudioBytes > 0 && int64(len(pcm)) > s.cfg.MaxAudioBytes {
		ws.writeError("audio chunk too large")
		return
	}
	s.metrics.RecordAudio("in", len(pcm))

	transcriptText, err := s.transcriber.Transcribe(ctx, pcm, msg.MimeType)
	if err != nil {
		s.metrics.RecordError("stt")
		ws.writeError(err.Error())
		return
	}

	_ = ws.writeJSON(map[string]any{
		"type":     protocol.TypeInputTranscript,
		"text":     transcriptText,
		"is_final": true,
	})

	reply, err := s.generateReply(ctx, sess, transcriptText)
	if err != nil {
		s.metrics.RecordError("reply")
		ws.writeError(err.Error())
		return
	}
	s.metrics.RecordTurn("audio")

	_ = ws.writeJSON(map[string]string{"type": protocol.TypeText, "data": reply})
	_ = ws.writeJSON(map[string]any{
		"type":     protocol.TypeOutputTranscript,
		"text":     reply,
		"is_final": true,
	})
	_ = ws.writeJSON(map[string]string{"type": protocol.TypeTurnComplete})
}
