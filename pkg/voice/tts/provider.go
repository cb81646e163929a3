// Package tts provides text-to-speech synthesis for assistant replies.
package tts

import (
	"context"
	"strings"
)

// Voice describes one synthesis voice.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Voice identifier
	Language   string  // Language name or tag
	Speed      float64 // Speed multiplier (default 1.0)
	Format     string  // Output format: "pcm" or "wav" (default "pcm")
	SampleRate int     // Sample rate in Hz (default 24000)
}

// Synthesis is the synthesis result.
type Synthesis struct {
	Audio        []byte // Raw audio data
	Format       string // Audio format of Audio
	SampleRateHz int    // Sample rate of Audio
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the synthesizer identifier.
	Name() string

	// Voices lists the available voices.
	Voices(ctx context.Context) ([]Voice, error)

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SelectVoice picks the voice best matching the target language: an exact
// language match first, then a primary-subtag prefix match ("es" matches
// "es-MX"), then any available voice. Returns false only when the list is
// empty.
func SelectVoice(voices []Voice, language string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	want := normalizeLang(language)
	if want != "" {
		for _, v := range voices {
			if normalizeLang(v.Language) == want {
				return v, true
			}
		}
		prefix := want
		if i := strings.IndexByte(prefix, '-'); i > 0 {
			prefix = prefix[:i]
		}
		for _, v := range voices {
			got := normalizeLang(v.Language)
			if got == prefix || strings.HasPrefix(got, prefix+"-") {
				return v, true
			}
		}
	}
	return voices[0], true
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	// Display names used by the mission catalog map onto primary subtags so
	// that voice catalogs keyed either way match.
	switch lang {
	case "english":
		return "en"
	case "spanish":
		return "es"
	case "french":
		return "fr"
	case "german":
		return "de"
	case "italian":
		return "it"
	case "portuguese":
		return "pt"
	case "japanese":
		return "ja"
	}
	return strings.ReplaceAll(lang, "_", "-")
}
