// Package tutor implements the practice server: the REST surface for
// missions and sessions, and the voice WebSocket that drives live
// conversations.
package tutor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talktrek/talktrek/pkg/mission"
	"github.com/talktrek/talktrek/pkg/voice/tts"
)

// ServerOptions wires a Server's collaborators.
type ServerOptions struct {
	Catalog     *mission.Catalog
	Responder   Responder
	Transcriber Transcriber
	Synthesizer tts.Synthesizer
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Server is the practice backend.
type Server struct {
	cfg         Config
	catalog     *mission.Catalog
	tracker     *Tracker
	responder   Responder
	transcriber Transcriber
	synth       tts.Synthesizer
	metrics     *Metrics
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewServer builds a practice server. The catalog defaults to the
// embedded one; metrics and logger default to fresh instances.
func NewServer(cfg Config, opts ServerOptions) *Server {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = mission.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.MetricsNamespace)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		catalog:     catalog,
		tracker:     NewTracker(cfg.HistoryLimit),
		responder:   opts.Responder,
		transcriber: opts.Transcriber,
		synth:       opts.Synthesizer,
		metrics:     metrics,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/missions", s.handleMissions)
	mux.HandleFunc("GET /api/missions/{id}", s.handleMissionByID)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /api/learning-modes", s.handleLearningModes)
	mux.HandleFunc("POST /api/voice/session", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/voice/session/{id}", s.handleEndSession)
	mux.HandleFunc("POST /api/voice/session/{id}/text", s.handleSessionText)
	mux.HandleFunc("POST /api/voice/tts", s.handleSynthesize)
	mux.HandleFunc("GET /api/voice/voices", s.handleVoices)
	mux.HandleFunc("GET /ws/voice/{id}", s.handleVoiceSocket)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var handler http.Handler = mux
	handler = authMiddleware(s.cfg, handler)
	handler = corsMiddleware(s.cfg, handler)
	handler = recoverMiddleware(s.logger, handler)
	handler = accessLogMiddleware(s.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("practice server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"missions": s.catalog.Missions()})
}

func (s *Server) handleMissionByID(w http.ResponseWriter, r *http.Request) {
	m, ok := s.catalog.ByID(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Mission not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": s.catalog.Languages()})
}

func (s *Server) handleLearningModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modes": s.catalog.Modes()})
}

type createSessionRequest struct {
	MissionID         string `json:"mission_id"`
	Language          string `json:"language"`
	FromLanguage      string `json:"from_language"`
	Mode              string `json:"mode"`
	CustomInstruction string `json:"custom_instruction"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "Spanish"
	}
	if req.FromLanguage == "" {
		req.FromLanguage = "English"
	}
	if req.Mode == "" {
		req.Mode = "teacher"
	}

	var m *mission.Mission
	if req.MissionID != "" {
		found, ok := s.catalog.ByID(req.MissionID)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "Unknown mission: "+req.MissionID)
			return
		}
		m = &found
	}

	sess := s.tracker.Create(m, req.Language, req.FromLanguage, req.Mode, req.CustomInstruction)
	s.metrics.RecordSessionStart(sess.Mode)
	s.logger.Info("session created",
		"session_id", sess.ID,
		"language", sess.Language,
		"mode", sess.Mode,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"mission":    sess.Mission,
		"language":   sess.Language,
		"mode":       sess.Mode,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.tracker.End(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	s.metrics.RecordSessionEnd(time.Since(sess.StartedAt))
	s.logger.Info("session ended", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"type":       "session_ended",
		"session_id": sess.ID,
	})
}

type textMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSessionText(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.tracker.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Session not found")
		return
	}

	var req textMessageRequest
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := s.generateReply(r.Context(), sess, req.Text)
	if err != nil {
		s.metrics.RecordError("reply")
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.metrics.RecordTurn("text")
	writeJSON(w, http.StatusOK, map[string]string{
		"type": "text",
		"data": reply,
	})
}

// generateReply appends the user turn, asks the responder, and records
// the assistant turn.
func (s *Server) generateReply(ctx context.Context, sess *TrackedSession, userText string) (string, error) {
	if s.responder == nil {
		return "", errors.New("no conversation model configured")
	}
	sess.AppendTurn("user", userText)
	reply, err := s.responder.Reply(ctx, sess.SystemInstruction, sess.History())
	if err != nil {
		return "", err
	}
	sess.AppendTurn("assistant", reply)
	return reply, nil
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil {
		writeJSONError(w, http.StatusNotImplemented, "speech synthesis is not configured")
		return
	}

	var req struct {
		Text       string  `json:"text"`
		Voice      string  `json:"voice"`
		Language   string  `json:"language"`
		Speed      float64 `json:"speed"`
		Format     string  `json:"format"`
		SampleRate int     `json:"sample_rate_hz"`
	}
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	synth, err := s.synth.Synthesize(r.Context(), req.Text, tts.SynthesizeOptions{
		Voice:      req.Voice,
		Language:   req.Language,
		Speed:      req.Speed,
		Format:     req.Format,
		SampleRate: req.SampleRate,
	})
	if err != nil {
		s.metrics.RecordError("tts")
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.RecordAudio("out", len(synth.Audio))
	writeJSON(w, http.StatusOK, map[string]any{
		"audio":          base64.StdEncoding.EncodeToString(synth.Audio),
		"format":         synth.Format,
		"sample_rate_hz": synth.SampleRateHz,
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.synth == nil {
		writeJSONError(w, http.StatusNotImplemented, "speech synthesis is not configured")
		return
	}
	voices, err := s.synth.Voices(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
