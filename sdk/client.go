// Package talktrek provides the TalkTrek SDK for Go.
//
// The client talks to a practice server over its REST API and opens live
// voice channels over WebSocket.
package talktrek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/talktrek/talktrek/pkg/mission"
	"github.com/talktrek/talktrek/pkg/voice"
)

const defaultBaseURL = "http://localhost:8000"

// Client is the main entry point for the SDK.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client. The base URL defaults to
// TALKTREK_BASE_URL when set.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    os.Getenv("TALKTREK_BASE_URL"),
		apiKey:     os.Getenv("TALKTREK_API_KEY"),
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// VoiceSessionRequest configures a new practice session.
type VoiceSessionRequest struct {
	// MissionID selects a mission, empty for free conversation.
	MissionID string `json:"mission_id,omitempty"`

	// Language is the language being learned.
	Language string `json:"language"`

	// FromLanguage is the learner's native language.
	FromLanguage string `json:"from_language"`

	// Mode is the learning mode id (teacher or immersive).
	Mode string `json:"mode"`
}

// VoiceSessionResponse describes a created session.
type VoiceSessionResponse struct {
	SessionID string           `json:"session_id"`
	Mission   *mission.Mission `json:"mission,omitempty"`
	Language  string           `json:"language"`
	Mode      string           `json:"mode"`
}

// CreateVoiceSession creates a practice session on the server.
func (c *Client) CreateVoiceSession(ctx context.Context, req *VoiceSessionRequest) (*VoiceSessionResponse, error) {
	if req == nil {
		return nil, voice.NewSetupError("req must not be nil", nil)
	}
	if strings.TrimSpace(req.Language) == "" {
		return nil, voice.NewSetupError("language must not be empty", nil)
	}
	var resp VoiceSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/voice/session", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, voice.NewSetupError("server returned no session id", nil)
	}
	return &resp, nil
}

// EndVoiceSession deletes a session on the server. Ending an unknown or
// already-ended session is not an error.
func (c *Client) EndVoiceSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return voice.NewSetupError("session id must not be empty", nil)
	}
	err := c.doJSON(ctx, http.MethodDelete, "/api/voice/session/"+sessionID, nil, nil)
	var verr *voice.Error
	if errors.As(err, &verr) && verr.Param == "404" {
		return nil
	}
	return err
}

// SendSessionText posts a typed user message into an active session.
func (c *Client) SendSessionText(ctx context.Context, sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return voice.NewSetupError("text must not be empty", nil)
	}
	body := map[string]string{"text": text}
	return c.doJSON(ctx, http.MethodPost, "/api/voice/session/"+sessionID+"/text", body, nil)
}

// Missions fetches the mission catalog.
func (c *Client) Missions(ctx context.Context) ([]mission.Mission, error) {
	var out struct {
		Missions []mission.Mission `json:"missions"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/missions", nil, &out); err != nil {
		return nil, err
	}
	return out.Missions, nil
}

// MissionByID fetches a single mission.
func (c *Client) MissionByID(ctx context.Context, id string) (*mission.Mission, error) {
	if strings.TrimSpace(id) == "" {
		return nil, voice.NewSetupError("mission id must not be empty", nil)
	}
	var m mission.Mission
	if err := c.doJSON(ctx, http.MethodGet, "/api/missions/"+id, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Languages fetches the supported target languages.
func (c *Client) Languages(ctx context.Context) ([]mission.Language, error) {
	var out struct {
		Languages []mission.Language `json:"languages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/languages", nil, &out); err != nil {
		return nil, err
	}
	return out.Languages, nil
}

// LearningModes fetches the available learning modes.
func (c *Client) LearningModes(ctx context.Context) ([]mission.LearningMode, error) {
	var out struct {
		Modes []mission.LearningMode `json:"modes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/learning-modes", nil, &out); err != nil {
		return nil, err
	}
	return out.Modes, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: c.baseURL + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(data, &payload)

	message := payload.Detail
	if message == "" {
		message = payload.Error
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}
	err := voice.NewSetupError(fmt.Sprintf("server returned %d: %s", resp.StatusCode, message), nil)
	err.Param = fmt.Sprintf("%d", resp.StatusCode)
	return err
}
