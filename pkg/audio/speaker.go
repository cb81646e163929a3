package audio

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// Sink-side playback constants. Synthesized assistant audio is PCM
// s16le mono at 24 kHz.
const (
	PlaybackSampleRateHz = 24000
	playbackChannels     = 1
	bytesPerSample       = 2
)

// OutputDevice abstracts the speaker the playback engine writes to.
type OutputDevice interface {
	// Write appends PCM to the playback buffer. Non-blocking.
	Write(pcm []byte)

	// Flush discards buffered audio and stops current playback
	// immediately.
	Flush()

	// Close releases the device.
	Close() error
}

// Speaker plays PCM through the system speaker. It implements
// OutputDevice over an oto player in pull mode: oto reads from the
// internal buffer, and Flush tears the player down so stale audio never
// overlaps a newer utterance.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

// NewSpeaker initializes the speaker output at the playback format.
func NewSpeaker() (*Speaker, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   PlaybackSampleRateHz,
		ChannelCount: playbackChannels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms buffer keeps barge-in latency low.
		BufferSize: PlaybackSampleRateHz * bytesPerSample / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write appends PCM and starts the player on first data.
func (s *Speaker) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

// Read implements io.Reader for the oto player, which pulls audio for
// playback.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards pending audio and stops current playback.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		// Pause first so audio stops now, then reset to clear oto's
		// internal buffer before discarding the player.
		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}

// Close releases the speaker.
func (s *Speaker) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}
