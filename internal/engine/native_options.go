package engine

import "github.com/nupi-ai/plugin-stt-whisper-host/internal/config"

const defaultTemperatureInc = 0.2

// NativeOptions configures the native Whisper backend. Nil fields fall back
// to whisper.cpp defaults.
type NativeOptions struct {
	UseGPU         *bool
	FlashAttention *bool
	// BeamSize sets beam search size (1 for greedy sampling, >1 for beam search).
	BeamSize *int
	// TemperatureInc controls temperature fallback during decoding (0.0 to disable).
	TemperatureInc *float32
	// DisableFallback mirrors --no-fallback; when true temperature fallback is disabled regardless of TemperatureInc.
	DisableFallback *bool
	// AudioCtx sets encoder context size (0 = all audio).
	AudioCtx *int
	// MaxTokens caps the tokens per segment (0 = no limit).
	MaxTokens *int
}

// NativeOptionsFromConfig maps the adapter configuration onto NativeOptions.
func NativeOptionsFromConfig(cfg config.Config) NativeOptions {
	opts := NativeOptions{
		UseGPU:         &cfg.UseGPU,
		FlashAttention: &cfg.FlashAttention,
	}
	if cfg.BeamSize > 0 {
		beam := cfg.BeamSize
		opts.BeamSize = &beam
	}
	return opts
}

type nativeSettings struct {
	useGPU         bool
	flashAttention bool
	beamSize       int
	temperatureInc float32
	audioCtx       int
	maxTokens      int
}

func (o NativeOptions) resolve() nativeSettings {
	s := nativeSettings{
		beamSize:       1,
		temperatureInc: defaultTemperatureInc,
	}
	if o.UseGPU != nil {
		s.useGPU = *o.UseGPU
	}
	if o.FlashAttention != nil {
		s.flashAttention = *o.FlashAttention
	}
	if o.BeamSize != nil && *o.BeamSize > 1 {
		s.beamSize = *o.BeamSize
	}
	if o.TemperatureInc != nil && *o.TemperatureInc >= 0 {
		s.temperatureInc = *o.TemperatureInc
	}
	if o.DisableFallback != nil && *o.DisableFallback {
		s.temperatureInc = 0
	}
	if o.AudioCtx != nil && *o.AudioCtx > 0 {
		s.audioCtx = *o.AudioCtx
	}
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		s.maxTokens = *o.MaxTokens
	}
	return s
}
