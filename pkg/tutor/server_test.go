package tutor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeTranscriber struct {
	text string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, nil
}

func newTestServer(t *testing.T, opts ServerOptions) *httptest.Server {
	t.Helper()
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	server := httptest.NewServer(NewServer(cfg, opts).Handler())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestMissionEndpoints(t *testing.T) {
	server := newTestServer(t, ServerOptions{})

	resp, err := http.Get(server.URL + "/api/missions")
	if err != nil {
		t.Fatalf("GET missions: %v", err)
	}
	defer resp.Body.Close()
	var missions struct {
		Missions []struct {
			ID string `json:"id"`
		} `json:"missions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&missions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(missions.Missions) == 0 {
		t.Fatal("embedded catalog must not be empty")
	}

	one, err := http.Get(server.URL + "/api/missions/" + missions.Missions[0].ID)
	if err != nil {
		t.Fatalf("GET mission: %v", err)
	}
	one.Body.Close()
	if one.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", one.StatusCode)
	}

	missing, err := http.Get(server.URL + "/api/missions/nope")
	if err != nil {
		t.Fatalf("GET missing mission: %v", err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", missing.StatusCode)
	}
}

func TestCreateSessionRejectsUnknownMission(t *testing.T) {
	server := newTestServer(t, ServerOptions{})

	resp := postJSON(t, server.URL+"/api/voice/session", map[string]string{
		"mission_id": "no-such-mission",
		"language":   "Spanish",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionLifecycleOverREST(t *testing.T) {
	server := newTestServer(t, ServerOptions{
		Responder: &ScriptedResponder{Replies: []string{"¡Hola! ¿Qué tal?"}},
	})

	resp := postJSON(t, server.URL+"/api/voice/session", map[string]string{
		"mission_id": "cafe-order",
		"language":   "Spanish",
		"mode":       "immersive",
	})
	var created struct {
		SessionID string `json:"session_id"`
		Mode      string `json:"mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()
	if created.SessionID == "" || created.Mode != "immersive" {
		t.Fatalf("created = %+v", created)
	}

	textResp := postJSON(t, server.URL+"/api/voice/session/"+created.SessionID+"/text", map[string]string{"text": "Hola"})
	var textOut struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := json.NewDecoder(textResp.Body).Decode(&textOut); err != nil {
		t.Fatalf("decode text: %v", err)
	}
	textResp.Body.Close()
	if textOut.Type != "text" || textOut.Data == "" {
		t.Fatalf("text reply = %+v", textOut)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/voice/session/"+created.SessionID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	again, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/voice/session/"+created.SessionID, nil)
	againResp, err := http.DefaultClient.Do(again)
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	againResp.Body.Close()
	if againResp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", againResp.StatusCode)
	}
}

func TestVoiceSocketAudioTurn(t *testing.T) {
	server := newTestServer(t, ServerOptions{
		Responder:   &ScriptedResponder{Replies: []string{"¡Hola! ¿Cómo estás?"}},
		Transcriber: &fakeTranscriber{text: "Hola"},
	})

	resp := postJSON(t, server.URL+"/api/voice/session", map[string]string{"language": "Spanish"})
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice/" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	if frame := readFrame(); frame["type"] != "connected" || frame["session_id"] != created.SessionID {
		t.Fatalf("greeting = %v", frame)
	}

	audio := base64.StdEncoding.EncodeToString([]byte("pcm bytes"))
	if err := conn.WriteJSON(map[string]string{"type": "audio", "data": audio, "mime_type": "audio/pcm;rate=16000"}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	var order []string
	for i := 0; i < 4; i++ {
		frame := readFrame()
		order = append(order, frame["type"].(string))
	}
	want := "input_transcript,text,output_transcript,turn_complete"
	if got := strings.Join(order, ","); got != want {
		t.Fatalf("frame order = %q, want %q", got, want)
	}

	if err := conn.WriteJSON(map[string]string{"type": "end"}); err != nil {
		t.Fatalf("write end: %v", err)
	}
	if frame := readFrame(); frame["type"] != "session_ended" {
		t.Fatalf("expected session_ended, got %v", frame)
	}
}

func TestVoiceSocketUnknownSession(t *testing.T) {
	server := newTestServer(t, ServerOptions{})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice/ghost"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", frame)
	}
}

func TestVoiceSocketMalformedMessageIsRecoverable(t *testing.T) {
	server := newTestServer(t, ServerOptions{
		Responder: &ScriptedResponder{Replies: []string{"Claro"}},
	})

	resp := postJSON(t, server.URL+"/api/voice/session", map[string]string{"language": "Spanish"})
	var created struct {
		SessionID string `json:"session_id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/voice/" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var greeting map[string]any
	if err := conn.ReadJSON(&greeting); err != nil {
		t.Fatalf("greeting: %v", err)
	}

	// Audio with no data is rejected but the socket stays usable.
	if err := conn.WriteJSON(map[string]string{"type": "audio"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errFrame map[string]any
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame["type"] != "error" {
		t.Fatalf("expected error frame, got %v", errFrame)
	}

	if err := conn.WriteJSON(map[string]string{"type": "text", "data": "Hola"}); err != nil {
		t.Fatalf("write text: %v", err)
	}
	var textFrame map[string]any
	if err := conn.ReadJSON(&textFrame); err != nil {
		t.Fatalf("read text frame: %v", err)
	}
	if textFrame["type"] != "text" {
		t.Fatalf("expected text frame after recovery, got %v", textFrame)
	}
}

func TestSynthesizeRequiresConfiguration(t *testing.T) {
	server := newTestServer(t, ServerOptions{})

	resp := postJSON(t, server.URL+"/api/voice/tts", map[string]string{"text": "hola"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestAuthGatesAPIWhenKeysConfigured(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	cfg.APIKeys = map[string]struct{}{"sk-test": {}}
	server := httptest.NewServer(NewServer(cfg, ServerOptions{}).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/missions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/missions", nil)
	req.Header.Set("Authorization", "Bearer sk-test")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with key: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", authed.StatusCode)
	}
}
