package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/youpy/go-wav"
)

func writeWAV(t *testing.T, channels uint16, rate uint32, values [][2]int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	samples := make([]wav.Sample, len(values))
	for i, v := range values {
		samples[i] = wav.Sample{Values: v}
	}
	w := wav.NewWriter(f, uint32(len(samples)), channels, rate, 16)
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	return path
}

func TestLoadWAVMono(t *testing.T) {
	path := writeWAV(t, 1, 16000, [][2]int{{0, 0}, {16384, 0}, {-32768, 0}})

	got, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	want := []float32{0, 0.5, -1}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadWAVStereoDownmix(t *testing.T) {
	path := writeWAV(t, 2, 16000, [][2]int{{16384, 0}, {-16384, -16384}})

	got, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV: %v", err)
	}
	if len(got) != 2 || got[0] != 0.25 || got[1] != -0.5 {
		t.Fatalf("unexpected samples %v", got)
	}
}

func TestLoadWAVRejectsSampleRate(t *testing.T) {
	path := writeWAV(t, 1, 44100, [][2]int{{0, 0}})
	if _, err := LoadWAV(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, err := LoadWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error")
	}
}
