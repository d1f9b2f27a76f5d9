package engine

import (
	"testing"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
)

func ptr[T any](v T) *T { return &v }

func TestNativeOptionsResolve(t *testing.T) {
	tests := []struct {
		name string
		opts NativeOptions
		want nativeSettings
	}{
		{
			name: "defaults",
			want: nativeSettings{beamSize: 1, temperatureInc: defaultTemperatureInc},
		},
		{
			name: "gpu and beam search",
			opts: NativeOptions{UseGPU: ptr(true), FlashAttention: ptr(true), BeamSize: ptr(5)},
			want: nativeSettings{useGPU: true, flashAttention: true, beamSize: 5, temperatureInc: defaultTemperatureInc},
		},
		{
			name: "disable fallback wins over temperature",
			opts: NativeOptions{TemperatureInc: ptr(float32(0.4)), DisableFallback: ptr(true)},
			want: nativeSettings{beamSize: 1},
		},
		{
			name: "out of range values ignored",
			opts: NativeOptions{BeamSize: ptr(0), TemperatureInc: ptr(float32(-1)), AudioCtx: ptr(-3), MaxTokens: ptr(-1)},
			want: nativeSettings{beamSize: 1, temperatureInc: defaultTemperatureInc},
		},
		{
			name: "encoder and token limits",
			opts: NativeOptions{AudioCtx: ptr(768), MaxTokens: ptr(32)},
			want: nativeSettings{beamSize: 1, temperatureInc: defaultTemperatureInc, audioCtx: 768, maxTokens: 32},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.resolve(); got != tt.want {
				t.Fatalf("resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNativeOptionsFromConfig(t *testing.T) {
	got := NativeOptionsFromConfig(config.Config{UseGPU: true, BeamSize: 4}).resolve()
	want := nativeSettings{useGPU: true, beamSize: 4, temperatureInc: defaultTemperatureInc}
	if got != want {
		t.Fatalf("resolve() = %+v, want %+v", got, want)
	}

	if s := NativeOptionsFromConfig(config.Config{}).resolve(); s.beamSize != 1 || s.useGPU {
		t.Fatalf("zero config resolved to %+v", s)
	}
}
