package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/adapterinfo"
)

// stubSegmentSamples is the amount of audio the stub turns into one segment.
const stubSegmentSamples = SampleRate

// StubEngine produces deterministic segments without invoking Whisper.
type StubEngine struct {
	log *slog.Logger
}

// NewStubEngine returns an Engine that generates placeholder segments.
func NewStubEngine(logger *slog.Logger) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEngine{
		log: logger.With(
			"component", "engine.stub",
			"adapter", adapterinfo.Info.Slug,
		),
	}
}

// Load implements the Engine interface. The model file is not read.
func (e *StubEngine) Load(modelPath string) (Context, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("engine: model path required")
	}
	model := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	e.log.Debug("stub context loaded", "model_path", modelPath)
	return &stubContext{log: e.log.With("model", model), model: model}, nil
}

type stubContext struct {
	log   *slog.Logger
	model string

	mu       sync.Mutex
	segments []Segment
	timings  Timings
	closed   bool
}

// Full emits one segment per second of audio. Each segment carries three
// tokens; with MaxSegmentLength 1 every token becomes its own segment. With
// Diarize every second ends on a speaker turn.
func (c *stubContext) Full(ctx context.Context, samples []float32, params Params, cb Callbacks) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("engine: context closed")
	}
	c.segments = c.segments[:0]
	c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.mu.Lock()
		c.timings.Samples += len(samples)
		c.timings.Segments = len(c.segments)
		c.timings.Elapsed += time.Since(start)
		c.mu.Unlock()
	}()

	if cb.aborted(ctx) {
		return abortError(ctx)
	}

	for k, offset := 0, 0; offset < len(samples); k, offset = k+1, offset+stubSegmentSamples {
		if cb.aborted(ctx) {
			return abortError(ctx)
		}
		end := min(offset+stubSegmentSamples, len(samples))
		t0 := int64(offset) * 100 / SampleRate
		t1 := int64(end) * 100 / SampleRate
		tokens := []Token{
			{Text: fmt.Sprintf(" [stub:%s]", c.model), P: 0.9},
			{Text: " segment", P: 0.75},
			{Text: fmt.Sprintf(" %d", k), P: 0.6},
		}
		var produced []Segment
		if params.MaxSegmentLength == 1 {
			span := (t1 - t0) / int64(len(tokens))
			for i, tok := range tokens {
				produced = append(produced, Segment{
					T0:     t0 + int64(i)*span,
					T1:     t0 + int64(i+1)*span,
					Tokens: []Token{tok},
				})
			}
		} else {
			produced = []Segment{{T0: t0, T1: t1, Tokens: tokens}}
		}
		if params.Diarize {
			produced[len(produced)-1].SpeakerTurn = true
		}

		c.mu.Lock()
		c.segments = append(c.segments, produced...)
		c.mu.Unlock()
		if cb.NewSegments != nil {
			cb.NewSegments(len(produced))
		}
	}

	c.log.Debug("stub decode finished",
		"samples", len(samples),
		"language", params.Language,
		"task", params.Task(),
	)
	return nil
}

func (c *stubContext) NumSegments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

func (c *stubContext) Segment(i int) Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.segments[i]
}

func (c *stubContext) ResetTimings() {
	c.mu.Lock()
	c.timings = Timings{}
	c.mu.Unlock()
}

func (c *stubContext) Timings() Timings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timings
}

func (c *stubContext) Close() error {
	c.mu.Lock()
	c.closed = true
	c.segments = nil
	c.mu.Unlock()
	return nil
}

func abortError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrAborted
}
