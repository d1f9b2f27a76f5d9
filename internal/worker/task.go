package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/job"
)

// Task is the handle of a submitted job.
type Task struct {
	job *job.Job

	ctx    context.Context
	cancel context.CancelFunc

	events    chan job.Event
	done      chan struct{}
	cancelled atomic.Bool

	mu  sync.Mutex
	err error
}

func newTask(j *job.Job, buffer int) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		job:    j,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan job.Event, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the job identifier.
func (t *Task) ID() string { return t.job.ID }

// Job returns the submitted job.
func (t *Task) Job() *job.Job { return t.job }

// Done is closed once the run finished and every event was delivered.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task is done or ctx expires. It returns the run error
// or ctx.Err().
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the engine to stop. Cancellation is cooperative: the engine
// polls it while decoding. It reports whether the task was still running.
func (t *Task) Cancel() bool {
	select {
	case <-t.done:
		return false
	default:
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel()
	return true
}

// Cancelled reports whether Cancel was called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Err returns the run error. It is nil while the task runs and after a
// successful run.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}
