package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talktrek/talktrek/pkg/tutor"
)

var serveScripted bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the practice backend server",
	Long: `Run the TalkTrek practice backend.

The server needs a Gemini API key for conversation and speech
recognition. Set TUTOR_GEMINI_API_KEY (or GEMINI_API_KEY) before
starting. With --scripted the server answers from a small canned
script instead, which is useful for local frontend work; scripted
mode handles text turns only.

Configuration is read from TUTOR_* environment variables, see the
talktrek documentation for the full list.

Examples:
  TUTOR_GEMINI_API_KEY=... talktrek serve
  talktrek serve --scripted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	cfg, err := tutor.LoadFromEnv()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := tutor.ServerOptions{Logger: logger}
	switch {
	case cfg.GeminiAPIKey != "":
		responder, err := tutor.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("initialize gemini: %w", err)
		}
		opts.Responder = responder
		opts.Transcriber = responder
		logger.Info("using gemini responder", "model", cfg.GeminiModel)
	case serveScripted:
		opts.Responder = &tutor.ScriptedResponder{Replies: []string{
			"¡Muy bien! Sigue practicando.",
			"Interesante, cuéntame más.",
			"¿Puedes repetirlo más despacio?",
		}}
		logger.Warn("running with scripted replies, text turns only")
	default:
		return fmt.Errorf("no conversation backend: set TUTOR_GEMINI_API_KEY or pass --scripted")
	}

	server := tutor.NewServer(cfg, opts)
	logger.Info("starting practice server", "addr", cfg.Addr)
	return server.ListenAndServe(ctx)
}

func init() {
	serveCmd.Flags().BoolVar(&serveScripted, "scripted", false, "answer from a canned script instead of a model")
}
