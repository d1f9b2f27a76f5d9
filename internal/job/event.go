package job

import "github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"

// EventKind classifies events emitted while a job runs.
type EventKind string

const (
	// EventSegment carries one newly finalised segment.
	EventSegment EventKind = "segment"
	// EventDone terminates a successful run and carries every segment of it.
	EventDone EventKind = "done"
	// EventFailed terminates a failed run.
	EventFailed EventKind = "failed"
)

// Event is an ordered message produced by a running job. Segment events of a
// run have strictly increasing indices; exactly one terminal event follows
// them.
type Event struct {
	JobID    string
	Kind     EventKind
	Index    int
	Segment  engine.Segment
	Segments []engine.Segment
	Err      error
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventFailed
}
