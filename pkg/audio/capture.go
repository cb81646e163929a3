package audio

import (
	"sync"

	"github.com/talktrek/talktrek/pkg/voice"
)

// DefaultMimeType describes the PCM the default capture config produces.
const DefaultMimeType = "audio/pcm;rate=16000"

// Chunk is one bounded unit of captured audio, consumed exactly once by
// the channel handler and then discarded.
type Chunk struct {
	Data     []byte
	MimeType string
}

// CaptureConfig configures the capture pipeline.
type CaptureConfig struct {
	// MimeType describes the produced audio. Default: DefaultMimeType.
	MimeType string

	// FrameSize, when positive, switches from batch-at-end chunking to
	// continuous fixed-size frames of this many bytes. The final partial
	// frame is always flushed at Stop regardless of mode.
	FrameSize int
}

// Sink receives captured chunks in production order.
type Sink func(Chunk) error

// Capture turns a live microphone stream into an ordered sequence of
// chunks. At most one capture session is active per session; Start while
// recording is a no-op, and no two Captures in one process may hold the
// microphone at once.
type Capture struct {
	device CaptureDevice
	cfg    CaptureConfig
	sink   Sink
	meter  *LevelMeter

	mu        sync.Mutex
	recording bool
	buf       []byte
	sinkErr   error
}

// NewCapture builds a capture pipeline over the given device. The meter
// is optional; when set it observes every captured frame.
func NewCapture(device CaptureDevice, cfg CaptureConfig, sink Sink, meter *LevelMeter) *Capture {
	if cfg.MimeType == "" {
		cfg.MimeType = DefaultMimeType
	}
	return &Capture{device: device, cfg: cfg, sink: sink, meter: meter}
}

// process-wide exclusive microphone ownership
var (
	micMu     sync.Mutex
	micHolder *Capture
)

func acquireMic(c *Capture) error {
	micMu.Lock()
	defer micMu.Unlock()
	if micHolder != nil && micHolder != c {
		return voice.NewPermissionError("microphone is held by another session", nil)
	}
	micHolder = c
	return nil
}

func releaseMic(c *Capture) {
	micMu.Lock()
	defer micMu.Unlock()
	if micHolder == c {
		micHolder = nil
	}
}

// Start requests the microphone and begins buffering audio. Starting
// while already recording is a no-op. A device failure is surfaced as a
// permission error and recording is not entered.
func (c *Capture) Start() error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := acquireMic(c); err != nil {
		return err
	}
	if err := c.device.Start(c.onFrame); err != nil {
		releaseMic(c)
		return voice.NewPermissionError("microphone access denied", err)
	}

	c.mu.Lock()
	c.recording = true
	c.buf = c.buf[:0]
	c.sinkErr = nil
	c.mu.Unlock()
	return nil
}

func (c *Capture) onFrame(pcm []byte) {
	if c.meter != nil {
		c.meter.Process(pcm)
	}

	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, pcm...)

	var frames []Chunk
	if c.cfg.FrameSize > 0 {
		for len(c.buf) >= c.cfg.FrameSize {
			frame := make([]byte, c.cfg.FrameSize)
			copy(frame, c.buf[:c.cfg.FrameSize])
			c.buf = c.buf[c.cfg.FrameSize:]
			frames = append(frames, Chunk{Data: frame, MimeType: c.cfg.MimeType})
		}
	}
	c.mu.Unlock()

	for _, frame := range frames {
		if err := c.sink(frame); err != nil {
			c.mu.Lock()
			if c.sinkErr == nil {
				c.sinkErr = err
			}
			c.mu.Unlock()
			return
		}
	}
}

// Stop flushes buffered audio as the final chunk, releases the
// microphone, and returns any error the sink reported during the
// recording. Calling Stop when not recording is a no-op.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil
	}
	c.recording = false
	final := c.buf
	c.buf = nil
	sinkErr := c.sinkErr
	c.mu.Unlock()

	_ = c.device.Stop()
	releaseMic(c)

	if len(final) > 0 {
		if err := c.sink(Chunk{Data: final, MimeType: c.cfg.MimeType}); err != nil && sinkErr == nil {
			sinkErr = err
		}
	}
	return sinkErr
}

// Recording reports whether capture is active.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Close stops capture and releases the underlying device.
func (c *Capture) Close() error {
	_ = c.Stop()
	return c.device.Close()
}
