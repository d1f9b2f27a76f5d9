package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
)

// DoneMarker terminates a streaming-mode run.
const DoneMarker = "DONE##"

// Mode selects how a run's results are rendered.
type Mode string

const (
	// ModeStreaming emits TIME/TEXT lines as segments are finalised and
	// DoneMarker at the end.
	ModeStreaming Mode = "streaming"
	// ModeAggregate emits one line per segment with the mean token
	// probability once the run completed.
	ModeAggregate Mode = "aggregate"
	// ModeTimestamps emits "[start --> end]  text" lines as segments are
	// finalised.
	ModeTimestamps Mode = "timestamps"
)

// ParseMode maps a configuration value to a Mode. Empty selects streaming.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeStreaming:
		return ModeStreaming, nil
	case ModeAggregate:
		return ModeAggregate, nil
	case ModeTimestamps:
		return ModeTimestamps, nil
	default:
		return "", fmt.Errorf("transcript: unknown result mode %q", value)
	}
}

// Incremental reports whether the mode renders segments while the run is
// still in progress.
func (m Mode) Incremental() bool {
	return m != ModeAggregate
}

// StreamingLines renders one segment as a TIME line followed by one TEXT
// line per token.
func StreamingLines(seg engine.Segment) []string {
	lines := make([]string, 0, len(seg.Tokens)+1)
	lines = append(lines, fmt.Sprintf("TIME##%d##%d", seg.T0, seg.T1))
	for _, tok := range seg.Tokens {
		lines = append(lines, fmt.Sprintf("TEXT##%s##%f", tok.Text, tok.P))
	}
	return lines
}

// AggregateLine renders one segment with its mean token probability.
func AggregateLine(seg engine.Segment) string {
	return fmt.Sprintf("text: %s; token.p: %f", seg.Text(), MeanProbability(seg.Tokens))
}

// TimestampLine renders one segment with formatted start and end times.
func TimestampLine(seg engine.Segment, comma bool) string {
	return FormatRange(seg.T0, seg.T1, comma) + "  " + seg.Text()
}

// MeanProbability averages token probabilities. It returns 0 for no tokens.
func MeanProbability(tokens []engine.Token) float32 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, tok := range tokens {
		sum += float64(tok.P)
	}
	return float32(sum / float64(len(tokens)))
}

// Writer renders run results as lines on an io.Writer. It is not safe for
// concurrent use; the delivery goroutine owns it.
type Writer struct {
	w     io.Writer
	mode  Mode
	comma bool
}

// NewWriter returns a Writer for the given mode.
func NewWriter(w io.Writer, mode Mode, comma bool) *Writer {
	if mode == "" {
		mode = ModeStreaming
	}
	return &Writer{w: w, mode: mode, comma: comma}
}

// Mode returns the rendering mode.
func (w *Writer) Mode() Mode { return w.mode }

// Segment renders a newly finalised segment. Aggregate mode writes nothing
// until Complete.
func (w *Writer) Segment(seg engine.Segment) error {
	switch w.mode {
	case ModeStreaming:
		return w.lines(StreamingLines(seg)...)
	case ModeTimestamps:
		return w.lines(TimestampLine(seg, w.comma))
	default:
		return nil
	}
}

// Complete renders the end of a successful run. segments holds every
// segment of the run in order.
func (w *Writer) Complete(segments []engine.Segment) error {
	switch w.mode {
	case ModeAggregate:
		lines := make([]string, 0, len(segments))
		for _, seg := range segments {
			lines = append(lines, AggregateLine(seg))
		}
		return w.lines(lines...)
	case ModeStreaming:
		return w.lines(DoneMarker)
	default:
		return nil
	}
}

func (w *Writer) lines(lines ...string) error {
	for _, line := range lines {
		if _, err := io.WriteString(w.w, line+"\n"); err != nil {
			return fmt.Errorf("transcript: write: %w", err)
		}
	}
	return nil
}
