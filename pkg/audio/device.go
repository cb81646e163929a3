// Package audio owns the client-side audio resources of a voice session:
// microphone capture, speaker playback, and the level meter. The
// microphone and the speaker are singly-owned exclusive resources; the
// session manager holds the handles and releases them on every exit path.
package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// CaptureDevice abstracts a microphone delivering raw PCM frames.
type CaptureDevice interface {
	// Start begins delivering PCM frames to onData. Frames arrive on the
	// device's own callback goroutine.
	Start(onData func(pcm []byte)) error

	// Stop halts frame delivery. Idempotent.
	Stop() error

	// Close releases the device. The device cannot be restarted after.
	Close() error
}

// MalgoDevice is a CaptureDevice backed by the system microphone.
type MalgoDevice struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	malgo   *malgo.AllocatedContext
	device  *malgo.Device
	started bool
}

// NewMalgoDevice initializes the audio backend for capture at the given
// rate. Initialization failure is reported as a permission-style error:
// on every platform malgo touches the device layer here, and denial is
// indistinguishable from absence.
func NewMalgoDevice(sampleRateHz, channels int) (*MalgoDevice, error) {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoDevice{
		sampleRate: sampleRateHz,
		channels:   channels,
		malgo:      ctx,
	}, nil
}

// Start opens the capture device and begins delivering frames.
func (d *MalgoDevice) Start(onData func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(d.channels)
	deviceConfig.SampleRate = uint32(d.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			if onData == nil || len(pInputSamples) == 0 {
				return
			}
			frame := make([]byte, len(pInputSamples))
			copy(frame, pInputSamples)
			onData(frame)
		},
	}

	device, err := malgo.InitDevice(d.malgo.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	d.device = device
	d.started = true
	return nil
}

// Stop halts frame delivery and releases the device handle.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false
	if d.device != nil {
		_ = d.device.Stop()
		d.device.Uninit()
		d.device = nil
	}
	return nil
}

// Close stops the device and tears down the audio context.
func (d *MalgoDevice) Close() error {
	_ = d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.malgo != nil {
		_ = d.malgo.Uninit()
		d.malgo = nil
	}
	return nil
}
