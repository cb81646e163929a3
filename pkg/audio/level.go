package audio

import (
	"math"
	"sync"
)

// Band center frequencies for the visualizer, in Hz. Chosen to span
// speech energy on a roughly logarithmic scale.
var bandFreqs = []float64{250, 500, 1000, 2000, 4000}

// Levels is one visualizer frame derived from a capture buffer.
type Levels struct {
	// RMS is the root-mean-square amplitude, normalized to [0, 1].
	RMS float64
	// Peak is the largest absolute sample, normalized to [0, 1].
	Peak float64
	// Bands holds per-frequency-band magnitudes, normalized to [0, 1].
	Bands []float64
}

// LevelMeter computes amplitude and band levels from raw capture audio.
// It is fed by the capture pipeline and polled by the UI, so the last
// frame is kept under a lock.
type LevelMeter struct {
	sampleRate int

	mu   sync.Mutex
	last Levels
}

// NewLevelMeter builds a meter for s16le mono audio at the given sample
// rate. A zero rate defaults to the capture rate.
func NewLevelMeter(sampleRateHz int) *LevelMeter {
	if sampleRateHz <= 0 {
		sampleRateHz = 16000
	}
	return &LevelMeter{sampleRate: sampleRateHz}
}

// Process ingests one buffer of s16le mono PCM and returns its levels.
// Odd trailing bytes are ignored.
func (m *LevelMeter) Process(pcm []byte) Levels {
	n := len(pcm) / 2
	if n == 0 {
		return m.Snapshot()
	}

	samples := make([]float64, n)
	var sumSq, peak float64
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		f := float64(s) / 32768.0
		samples[i] = f
		sumSq += f * f
		if a := math.Abs(f); a > peak {
			peak = a
		}
	}

	lv := Levels{
		RMS:   math.Sqrt(sumSq / float64(n)),
		Peak:  peak,
		Bands: make([]float64, len(bandFreqs)),
	}
	for i, freq := range bandFreqs {
		lv.Bands[i] = goertzel(samples, freq, m.sampleRate)
	}

	m.mu.Lock()
	m.last = lv
	m.mu.Unlock()
	return lv
}

// Snapshot returns the most recent frame without processing new audio.
func (m *LevelMeter) Snapshot() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	lv := m.last
	if lv.Bands != nil {
		lv.Bands = append([]float64(nil), lv.Bands...)
	}
	return lv
}

// goertzel measures the normalized magnitude of a single frequency in a
// sample window. Cheaper than an FFT when only a handful of bands are
// needed.
func goertzel(samples []float64, freq float64, sampleRate int) float64 {
	n := len(samples)
	if n == 0 || sampleRate <= 0 {
		return 0
	}
	k := 2 * math.Pi * freq / float64(sampleRate)
	coeff := 2 * math.Cos(k)

	var s0, s1, s2 float64
	for _, x := range samples {
		s0 = x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}
	mag := math.Sqrt(power) / float64(n) * 2
	if mag > 1 {
		mag = 1
	}
	return mag
}
