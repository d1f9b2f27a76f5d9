package worker

// State is the lifecycle state of the single execution slot.
type State string

const (
	// StateIdle means no job has been submitted yet.
	StateIdle State = "idle"
	// StateRunning means a job is decoding.
	StateRunning State = "running"
	// StateCompleted means the last job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the last job failed or was cancelled.
	StateFailed State = "failed"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// validTransition enforces the slot state machine edges.
func validTransition(from, to State) bool {
	switch from {
	case StateIdle, StateCompleted, StateFailed:
		return to == StateRunning
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
