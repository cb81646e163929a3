package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPSynthesizer talks to a speech-synthesis HTTP endpoint that accepts a
// JSON request and returns base64 audio. The tutoring backend exposes one
// at /api/voice/tts; any service with the same shape works.
type HTTPSynthesizer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSynthesizer creates a synthesizer against the given base URL.
func NewHTTPSynthesizer(baseURL, apiKey string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// NewHTTPSynthesizerWithClient creates a synthesizer with a custom HTTP client.
func NewHTTPSynthesizerWithClient(baseURL, apiKey string, client *http.Client) *HTTPSynthesizer {
	s := NewHTTPSynthesizer(baseURL, apiKey)
	if client != nil {
		s.httpClient = client
	}
	return s
}

// Name returns the synthesizer identifier.
func (s *HTTPSynthesizer) Name() string {
	return "http"
}

type synthesizeRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice,omitempty"`
	Language   string  `json:"language,omitempty"`
	Speed      float64 `json:"speed,omitempty"`
	Format     string  `json:"format,omitempty"`
	SampleRate int     `json:"sample_rate_hz,omitempty"`
}

type synthesizeResponse struct {
	Audio        string `json:"audio"`
	Format       string `json:"format"`
	SampleRateHz int    `json:"sample_rate_hz"`
}

// Synthesize converts text to audio.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesize: text must not be empty")
	}
	format := opts.Format
	if format == "" {
		format = "pcm"
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:       text,
		Voice:      opts.Voice,
		Language:   opts.Language,
		Speed:      opts.Speed,
		Format:     format,
		SampleRate: sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/voice/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("synthesize failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var decoded synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode synthesize response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode synthesized audio: %w", err)
	}
	if decoded.SampleRateHz <= 0 {
		decoded.SampleRateHz = sampleRate
	}
	if decoded.Format == "" {
		decoded.Format = format
	}
	return &Synthesis{
		Audio:        audio,
		Format:       decoded.Format,
		SampleRateHz: decoded.SampleRateHz,
	}, nil
}

// Voices lists the voices the endpoint offers.
func (s *HTTPSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/voice/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create voices request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voices request failed (status %d)", resp.StatusCode)
	}

	var voices []Voice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("decode voices response: %w", err)
	}
	return voices, nil
}
