package engine

import (
	"context"
	"strings"
	"time"
)

// SampleRate is the sample rate, in Hz, every engine expects its float32 input at.
const SampleRate = 16000

// Engine constructs model-bound inference contexts. Implementations are
// backed by whisper.cpp or a stub.
type Engine interface {
	// Load reads the model at modelPath and returns a context bound to it.
	Load(modelPath string) (Context, error)
}

// Context is a loaded, model-bound inference context. It runs one decode at a
// time; callers serialise access.
type Context interface {
	// Full decodes samples synchronously. NewSegments runs on the calling
	// goroutine; Abort may be polled from engine threads.
	Full(ctx context.Context, samples []float32, params Params, cb Callbacks) error
	// NumSegments reports how many segments the current (or last) run produced.
	NumSegments() int
	// Segment returns segment i of the current (or last) run.
	Segment(i int) Segment
	// ResetTimings clears the per-run timing counters.
	ResetTimings()
	// Timings returns the counters accumulated since the last reset.
	Timings() Timings
	// Close releases the model and all native resources.
	Close() error
}

// Params configures a single decode.
type Params struct {
	Language         string
	Translate        bool
	MaxSegmentLength int
	Threads          int
	SplitOnWord      bool
	TokenTimestamps  bool
	Diarize          bool
}

// Task names the decode task for logging.
func (p Params) Task() string {
	if p.Translate {
		return "translate"
	}
	return "transcribe"
}

// Callbacks lets the caller observe and steer a running decode.
type Callbacks struct {
	// NewSegments is called each time nNew segments have been finalised
	// since the previous call.
	NewSegments func(nNew int)
	// Abort is polled by the engine; returning true stops decoding early.
	// It must be safe for concurrent use.
	Abort func() bool
}

func (cb Callbacks) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return cb.Abort != nil && cb.Abort()
}

// Segment is a time-bounded span of recognised speech. Times are in
// centiseconds.
type Segment struct {
	T0          int64
	T1          int64
	Tokens      []Token
	SpeakerTurn bool
}

// Text concatenates the token texts of the segment.
func (s Segment) Text() string {
	var b strings.Builder
	for _, tok := range s.Tokens {
		b.WriteString(tok.Text)
	}
	return b.String()
}

// Token is a sub-segment unit of recognised text.
type Token struct {
	Text string
	P    float32
}

// Timings summarises one decode.
type Timings struct {
	Samples  int
	Segments int
	Elapsed  time.Duration
}

// Centiseconds converts a duration to the centisecond resolution used by
// Segment timestamps, truncating.
func Centiseconds(d time.Duration) int64 {
	return int64(d / (10 * time.Millisecond))
}
