package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/studylens/pkg/types"
)

const (
	// DefaultFFTSize matches the capture page's AnalyserNode.fftSize.
	DefaultFFTSize = 256

	// DefaultMeterInterval is how often the latest level is published.
	DefaultMeterInterval = 100 * time.Millisecond

	// The byte scaling and smoothing constants are the WebAudio AnalyserNode
	// defaults, so levels computed here line up with levels the page reports.
	defaultMinDecibels = -100.0
	defaultMaxDecibels = -30.0
	defaultSmoothing   = 0.8
)

// Meter reduces audio to a single volume level in [0,1]: the mean of the
// byte-scaled frequency bins of the most recent analysis window, divided by
// 255. Levels may also be pushed directly with SetLevel when the page already
// computed them.
//
// Meter is safe for concurrent use.
type Meter struct {
	size      int
	smoothing float64
	window    []float64

	mu     sync.Mutex
	tail   []float64 // most recent mono samples, at most size
	smooth []float64 // smoothed magnitudes per bin
	level  float64
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithFFTSize sets the analysis window length. Non-powers of two are accepted;
// values below 32 are ignored.
func WithFFTSize(n int) MeterOption {
	return func(m *Meter) {
		if n >= 32 {
			m.size = n
		}
	}
}

// WithSmoothing sets the time-smoothing constant in [0,1). Zero disables
// smoothing.
func WithSmoothing(s float64) MeterOption {
	return func(m *Meter) {
		if s >= 0 && s < 1 {
			m.smoothing = s
		}
	}
}

// NewMeter creates a Meter with the AnalyserNode defaults.
func NewMeter(opts ...MeterOption) *Meter {
	m := &Meter{size: DefaultFFTSize, smoothing: defaultSmoothing}
	for _, o := range opts {
		o(m)
	}
	m.window = blackman(m.size)
	m.smooth = make([]float64, m.size/2)
	return m
}

// Write analyses a PCM frame. Frames shorter than the window are accumulated
// until a full window is available; only the newest window is analysed.
func (m *Meter) Write(frame types.AudioFrame) {
	samples := Float32Mono(frame.Data, frame.Channels)
	if len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tail = append(m.tail, samples...)
	if len(m.tail) > m.size {
		m.tail = m.tail[len(m.tail)-m.size:]
	}
	if len(m.tail) < m.size {
		return
	}
	m.level = m.analyse(m.tail)
}

// SetLevel stores a level computed elsewhere, clamped to [0,1].
func (m *Meter) SetLevel(level float64) {
	m.mu.Lock()
	m.level = clamp01(level)
	m.mu.Unlock()
}

// Level returns the most recent level.
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset clears accumulated samples, smoothing state and the level.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tail = m.tail[:0]
	clear(m.smooth)
	m.level = 0
}

// Run calls publish with the current level every interval until ctx is done.
func (m *Meter) Run(ctx context.Context, interval time.Duration, publish func(float64)) {
	if interval <= 0 {
		interval = DefaultMeterInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			publish(m.Level())
		}
	}
}

// analyse runs a windowed DFT over block and returns the mean byte bin value
// scaled to [0,1]. Must be called with m.mu held.
func (m *Meter) analyse(block []float64) float64 {
	n := m.size
	bins := n / 2
	scale := 255.0 / (defaultMaxDecibels - defaultMinDecibels)

	var sum float64
	for k := range bins {
		var re, im float64
		for i := range n {
			x := block[i] * m.window[i]
			angle := -2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += x * math.Cos(angle)
			im += x * math.Sin(angle)
		}
		mag := math.Hypot(re, im) / float64(n)
		mag = m.smoothing*m.smooth[k] + (1-m.smoothing)*mag
		m.smooth[k] = mag

		b := 0.0
		if mag > 0 {
			db := 20 * math.Log10(mag)
			b = math.Floor(scale * (db - defaultMinDecibels))
		}
		sum += math.Max(0, math.Min(255, b))
	}
	return sum / float64(bins) / 255
}

func blackman(n int) []float64 {
	const a = 0.16
	a0, a1, a2 := (1-a)/2, 0.5, a/2
	w := make([]float64, n)
	for i := range n {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
