package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/youpy/go-wav"

	"github.com/MrWong99/studylens/pkg/types"
)

// ErrUnsupportedWAV is returned for WAV data that is not 16-bit PCM with one
// or two channels.
var ErrUnsupportedWAV = errors.New("audio: unsupported wav encoding")

// DecodeWAV parses a RIFF/WAV file into a PCM frame.
func DecodeWAV(data []byte) (types.AudioFrame, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return types.AudioFrame{}, fmt.Errorf("audio: read wav format: %w", err)
	}
	if format.AudioFormat != wav.AudioFormatPCM || format.BitsPerSample != 16 ||
		format.NumChannels < 1 || format.NumChannels > 2 {
		return types.AudioFrame{}, fmt.Errorf("%w: format=%d bits=%d channels=%d",
			ErrUnsupportedWAV, format.AudioFormat, format.BitsPerSample, format.NumChannels)
	}

	channels := int(format.NumChannels)
	var pcm []byte
	for {
		samples, err := r.ReadSamples()
		for _, s := range samples {
			for ch := range channels {
				pcm = binary.LittleEndian.AppendUint16(pcm, uint16(int16(s.Values[ch])))
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.AudioFrame{}, fmt.Errorf("audio: read wav samples: %w", err)
		}
	}

	return types.AudioFrame{
		Data:       pcm,
		SampleRate: int(format.SampleRate),
		Channels:   channels,
	}, nil
}

// EncodeWAV wraps PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	channels = max(channels, 1)
	frames := len(pcm) / (2 * channels)

	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(frames), uint16(channels), uint32(sampleRate), 16)
	if _, err := w.Write(pcm[:frames*2*channels]); err != nil {
		return nil, fmt.Errorf("audio: write wav data: %w", err)
	}
	return buf.Bytes(), nil
}
