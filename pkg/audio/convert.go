// Package audio turns the raw audio the capture page pushes into the two forms
// the server needs: a volume level for the mode controller and 16 kHz mono
// PCM for server-side speech recognition.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/MrWong99/studylens/pkg/types"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the format speech recognisers expect.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// FormatConverter converts frames to a mono target format. It logs a warning
// on the first format mismatch and drops frames whose byte count is not a
// whole number of samples. Create one per stream.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert down-mixes and resamples frame to c.Target. A frame already in the
// target format is returned unchanged.
func (c *FormatConverter) Convert(frame types.AudioFrame) types.AudioFrame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: partial sample frame in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"channels", channels,
			)
		})
		return types.AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == c.Target.SampleRate && channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	// Down-mix first so only one channel is resampled.
	pcm := frame.Data
	if channels > 1 {
		pcm = DownmixMono(pcm, channels)
	}
	pcm = ResampleMono16(pcm, frame.SampleRate, c.Target.SampleRate)

	return types.AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// DownmixMono averages every interleaved frame of channels samples into one
// mono sample. Trailing bytes that do not form a whole frame are ignored.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/int32(channels))))
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate using linear
// interpolation. Equal or non-positive rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Float32Mono converts PCM to mono float samples in [-1, 1).
func Float32Mono(pcm []byte, channels int) []float64 {
	if channels > 1 {
		pcm = DownmixMono(pcm, channels)
	}
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square of mono PCM in sample units (0..32767).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// formatString renders a format like "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
