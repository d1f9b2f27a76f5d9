package server

// InitRequest loads a model into a free context slot. An empty ModelPath
// selects the configured model.
type InitRequest struct {
	ModelPath string `json:"model_path,omitempty"`
}

// InitResponse carries the 1-based handle, or 0 on failure.
type InitResponse struct {
	Handle int32 `json:"handle"`
}

// FreeRequest releases a context slot.
type FreeRequest struct {
	Handle int32 `json:"handle"`
}

// FreeResponse is empty.
type FreeResponse struct{}

// TranscribeRequest starts a job. Zero-valued tuning fields fall back to the
// adapter configuration. Metadata may carry the client language under
// "nupi.lang.iso1".
type TranscribeRequest struct {
	Handle           int32             `json:"handle"`
	Audio            []float32         `json:"audio"`
	Language         string            `json:"language,omitempty"`
	Threads          int32             `json:"threads,omitempty"`
	Translate        bool              `json:"translate,omitempty"`
	MaxSegmentLength int32             `json:"max_segment_length,omitempty"`
	Diarize          bool              `json:"diarize,omitempty"`
	Mode             string            `json:"mode,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// TranscribeResponse carries the control-surface result code: 0 started, -1
// handle out of range, -2 handle not bound.
type TranscribeResponse struct {
	Code  int32  `json:"code"`
	JobID string `json:"job_id,omitempty"`
}

// StatusRequest is empty.
type StatusRequest struct{}

// StatusResponse describes the execution slot.
type StatusResponse struct {
	State    string `json:"state"`
	JobID    string `json:"job_id,omitempty"`
	Segments int32  `json:"segments"`
	Error    string `json:"error,omitempty"`
}

// WaitRequest blocks until the running job finished. TimeoutMs <= 0 waits
// for as long as the call context allows.
type WaitRequest struct {
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// WaitResponse reports the state reached by the job.
type WaitResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// CancelRequest is empty.
type CancelRequest struct{}

// CancelResponse reports whether a job was running.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// EventsRequest subscribes to job events.
type EventsRequest struct{}

// Event kinds sent on the Events stream in addition to the job event kinds.
const (
	EventReady = "ready"
)

// Token is a recognised token with its probability.
type Token struct {
	Text string  `json:"text"`
	P    float32 `json:"p"`
}

// Event is one message of the Events stream. Lines holds the rendered
// result lines of the job's mode.
type Event struct {
	Kind   string  `json:"kind"`
	JobID  string  `json:"job_id,omitempty"`
	Index  int32   `json:"index"`
	T0     int64   `json:"t0,omitempty"`
	T1     int64   `json:"t1,omitempty"`
	Text   string  `json:"text,omitempty"`
	Tokens []Token `json:"tokens,omitempty"`
	// SpeakerTurn marks a segment followed by a speaker change.
	SpeakerTurn bool              `json:"speaker_turn,omitempty"`
	Segments    int32             `json:"segments,omitempty"`
	Lines       []string          `json:"lines,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
