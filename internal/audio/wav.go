// Package audio loads 16 kHz PCM WAV files into the float32 sample format
// the engine consumes.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
)

const (
	readChunk = 4096
	formatPCM = 1
)

// Source is a seekable WAV byte source such as *os.File.
type Source interface {
	io.Reader
	io.ReaderAt
}

var (
	// ErrUnsupportedFormat is returned for WAV files that are not 16-bit PCM
	// at the engine sample rate.
	ErrUnsupportedFormat = errors.New("audio: unsupported wav format")
)

// LoadWAV reads the WAV file at path. Stereo input is downmixed to mono.
func LoadWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	samples, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return samples, nil
}

// DecodeWAV decodes a WAV stream.
func DecodeWAV(r Source) ([]float32, error) {
	reader := wav.NewReader(r)

	format, err := reader.Format()
	if err != nil {
		return nil, err
	}
	if format.AudioFormat != formatPCM || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: format %d, %d bits", ErrUnsupportedFormat, format.AudioFormat, format.BitsPerSample)
	}
	if format.SampleRate != engine.SampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrUnsupportedFormat, format.SampleRate, engine.SampleRate)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, format.NumChannels)
	}

	const scale = 32768.0
	var out []float32
	for {
		samples, err := reader.ReadSamples(readChunk)
		for _, s := range samples {
			v := float64(s.Values[0])
			if format.NumChannels == 2 {
				v = (v + float64(s.Values[1])) / 2
			}
			out = append(out, float32(v/scale))
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
