package audio

import (
	"context"
	"sync"
	"time"

	"github.com/talktrek/talktrek/pkg/voice/tts"
)

// Player is the audio playback engine: it speaks assistant text aloud
// unless muted, and always yields to the newest utterance (barge-in).
type Player struct {
	synth tts.Synthesizer
	out   OutputDevice

	mu        sync.Mutex
	muted     bool
	cancel    context.CancelFunc
	voices    []tts.Voice
	voicesSet bool
}

// NewPlayer builds a playback engine over a synthesizer and an output
// device. Both handles stay owned by the caller's session.
func NewPlayer(synth tts.Synthesizer, out OutputDevice) *Player {
	return &Player{synth: synth, out: out}
}

// Speak synthesizes and plays text in the target language. Any utterance
// still playing is cancelled first; the call blocks for the audible
// duration and returns early when cancelled. Muted players ignore the
// call entirely.
func (p *Player) Speak(ctx context.Context, text, language string) error {
	p.mu.Lock()
	if p.muted {
		p.mu.Unlock()
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	speakCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		p.mu.Unlock()
	}()

	// Newest utterance wins: clear whatever the previous one buffered.
	p.out.Flush()

	voice, err := p.voiceFor(speakCtx, language)
	if err != nil {
		return err
	}

	synth, err := p.synth.Synthesize(speakCtx, text, tts.SynthesizeOptions{
		Voice:      voice.ID,
		Language:   language,
		Format:     "pcm",
		SampleRate: PlaybackSampleRateHz,
	})
	if err != nil {
		if speakCtx.Err() != nil {
			return nil
		}
		return err
	}

	return p.play(speakCtx, synth)
}

func (p *Player) voiceFor(ctx context.Context, language string) (tts.Voice, error) {
	p.mu.Lock()
	cached, ok := p.voices, p.voicesSet
	p.mu.Unlock()
	if !ok {
		listed, err := p.synth.Voices(ctx)
		if err != nil {
			return tts.Voice{}, err
		}
		p.mu.Lock()
		p.voices = listed
		p.voicesSet = true
		cached = listed
		p.mu.Unlock()
	}
	// SelectVoice falls back to any available voice; an empty catalog
	// means the synthesizer picks its own default.
	v, _ := tts.SelectVoice(cached, language)
	return v, nil
}

// play writes the synthesized PCM in slices, pacing writes to the audio
// clock so cancellation takes effect mid-utterance rather than after the
// whole buffer is queued.
func (p *Player) play(ctx context.Context, synth *tts.Synthesis) error {
	sampleRate := synth.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRateHz
	}
	sliceBytes := sampleRate * bytesPerSample / 10 // 100ms
	if sliceBytes <= 0 {
		sliceBytes = len(synth.Audio)
	}

	pcm := synth.Audio
	for len(pcm) > 0 {
		if ctx.Err() != nil {
			p.out.Flush()
			return nil
		}
		n := sliceBytes
		if n > len(pcm) {
			n = len(pcm)
		}
		p.out.Write(pcm[:n])
		pcm = pcm[n:]

		sliceDur := time.Duration(n) * time.Second / time.Duration(sampleRate*bytesPerSample)
		timer := time.NewTimer(sliceDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.out.Flush()
			return nil
		case <-timer.C:
		}
	}
	return nil
}

// PlayRaw queues already-synthesized PCM for playback without invoking
// the synthesizer. Used for audio the server sends directly. Muted
// players drop it.
func (p *Player) PlayRaw(pcm []byte) {
	p.mu.Lock()
	muted := p.muted
	p.mu.Unlock()
	if muted || len(pcm) == 0 {
		return
	}
	p.out.Write(pcm)
}

// SetMuted toggles mute. Muting cancels in-flight playback immediately
// rather than only suppressing future utterances.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	cancel := p.cancel
	p.mu.Unlock()

	if muted {
		if cancel != nil {
			cancel()
		}
		p.out.Flush()
	}
}

// Muted reports the mute state.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Cancel stops any in-flight speech. Safe to call at any time.
func (p *Player) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.out.Flush()
}

// Close cancels playback and releases the output device.
func (p *Player) Close() error {
	p.Cancel()
	return p.out.Close()
}
