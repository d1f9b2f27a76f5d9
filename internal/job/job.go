// Package job describes a single transcription invocation and the events it
// produces.
package job

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/pool"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/transcript"
)

// Params is the immutable parameter set of one job. Threads is the
// post-budget thread count.
type Params struct {
	Language         string
	Translate        bool
	MaxSegmentLength int
	Threads          int
	SplitOnWord      bool
	Diarize          bool
	Mode             transcript.Mode
}

// EngineParams maps the job parameters onto engine decode parameters. Token
// timestamps are always enabled since MaxSegmentLength depends on them.
func (p Params) EngineParams() engine.Params {
	lang := strings.TrimSpace(p.Language)
	if lang == "" {
		lang = "auto"
	}
	return engine.Params{
		Language:         lang,
		Translate:        p.Translate,
		MaxSegmentLength: p.MaxSegmentLength,
		Threads:          p.Threads,
		SplitOnWord:      p.SplitOnWord,
		TokenTimestamps:  true,
		Diarize:          p.Diarize,
	}
}

// Job is one transcription invocation. Audio is owned by the job.
type Job struct {
	ID     string
	Handle pool.Handle
	Audio  []float32
	Params Params
}

// New builds a job, copying audio so the caller may reuse its buffer as soon
// as New returns. SplitOnWord is always set.
func New(handle pool.Handle, audio []float32, params Params) *Job {
	owned := make([]float32, len(audio))
	copy(owned, audio)
	params.SplitOnWord = true
	if params.Mode == "" {
		params.Mode = transcript.ModeStreaming
	}
	return &Job{
		ID:     uuid.NewString(),
		Handle: handle,
		Audio:  owned,
		Params: params,
	}
}

// Duration is the length of the job's audio.
func (j *Job) Duration() time.Duration {
	return time.Duration(len(j.Audio)) * time.Second / engine.SampleRate
}

// Run decodes the job's audio on ectx and returns the engine timings of the
// run. Incremental results are observed only through cb, which the engine
// invokes from the calling goroutine.
func (j *Job) Run(ctx context.Context, ectx engine.Context, cb engine.Callbacks) (engine.Timings, error) {
	ectx.ResetTimings()
	err := ectx.Full(ctx, j.Audio, j.Params.EngineParams(), cb)
	return ectx.Timings(), err
}
