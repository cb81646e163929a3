package tutor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds practice server settings, loaded from the environment.
type Config struct {
	Addr string

	// APIKeys, when non-empty, gates the API behind bearer auth.
	APIKeys map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Limits
	MaxBodyBytes      int64
	MaxAudioBytes     int64
	MaxJSONFrameBytes int64

	// HistoryLimit bounds the conversation turns kept per session.
	HistoryLimit int

	// Conversation model
	GeminiAPIKey string
	GeminiModel  string

	// Metrics namespace.
	MetricsNamespace string

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	WSWriteTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv builds a Config from TUTOR_* environment variables.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("TUTOR_ADDR", ":8000"),
		APIKeys:             make(map[string]struct{}),
		CORSAllowedOrigins:  make(map[string]struct{}),
		MaxBodyBytes:        envInt64Or("TUTOR_MAX_BODY_BYTES", 1<<20),   // 1 MiB
		MaxAudioBytes:       envInt64Or("TUTOR_MAX_AUDIO_BYTES", 8<<20),  // 8 MiB decoded
		MaxJSONFrameBytes:   envInt64Or("TUTOR_MAX_FRAME_BYTES", 12<<20), // base64 overhead included
		HistoryLimit:        envIntOr("TUTOR_HISTORY_LIMIT", 10),
		GeminiAPIKey:        firstEnv("TUTOR_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		GeminiModel:         envOr("TUTOR_GEMINI_MODEL", "gemini-2.0-flash"),
		MetricsNamespace:    envOr("TUTOR_METRICS_NAMESPACE", "talktrek"),
		ReadHeaderTimeout:   envDurationOr("TUTOR_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("TUTOR_READ_TIMEOUT", 30*time.Second),
		WSWriteTimeout:      envDurationOr("TUTOR_WS_WRITE_TIMEOUT", 5*time.Second),
		ShutdownGracePeriod: envDurationOr("TUTOR_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
	}

	for _, key := range splitCSV(os.Getenv("TUTOR_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("TUTOR_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("TUTOR_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxAudioBytes <= 0 {
		return Config{}, fmt.Errorf("TUTOR_MAX_AUDIO_BYTES must be > 0")
	}
	if cfg.MaxJSONFrameBytes <= 0 {
		return Config{}, fmt.Errorf("TUTOR_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("TUTOR_HISTORY_LIMIT must be > 0")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func envInt64Or(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
