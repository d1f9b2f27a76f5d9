// Package worker runs transcription jobs on a single background execution
// slot. Submitting a job first waits for the previous one to finish.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/job"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/pool"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/telemetry"
)

var (
	// ErrDecodeFailed wraps engine failures of a run.
	ErrDecodeFailed = errors.New("worker: decode failed")
	// ErrCancelled wraps the error of a run stopped through Task.Cancel.
	ErrCancelled = errors.New("worker: cancelled")
)

const defaultEventBuffer = 64

// Resolver maps a handle to the context it is bound to. *pool.Pool
// implements it.
type Resolver interface {
	Resolve(h pool.Handle) (engine.Context, error)
}

// Sink receives the events of every run in order, from a single goroutine.
type Sink func(job.Event)

// Status is a snapshot of the execution slot.
type Status struct {
	State    State
	JobID    string
	Segments int
	Err      error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the event consumer.
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithEventBuffer sets how many events may queue between the decoding and
// the delivering goroutine.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// Orchestrator owns the single execution slot.
type Orchestrator struct {
	resolver Resolver
	log      *slog.Logger
	sink     Sink
	recorder *telemetry.Recorder
	buffer   int

	admit sync.Mutex

	mu       sync.Mutex
	state    State
	current  *Task
	segments int
	lastErr  error
}

// New returns an idle orchestrator.
func New(resolver Resolver, logger *slog.Logger, opts ...Option) *Orchestrator {
	if resolver == nil {
		panic("worker: resolver must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		resolver: resolver,
		log:      logger.With("component", "worker"),
		buffer:   defaultEventBuffer,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit waits for the previous job, resolves the job's context and starts
// decoding in the background. A resolution error is returned without
// starting a run and leaves the slot state unchanged.
func (o *Orchestrator) Submit(j *job.Job) (*Task, error) {
	if j == nil {
		return nil, errors.New("worker: nil job")
	}

	o.admit.Lock()
	defer o.admit.Unlock()

	o.Join()

	ectx, err := o.resolver.Resolve(j.Handle)
	if err != nil {
		o.log.Warn("job rejected", "job_id", j.ID, "handle", int(j.Handle), "error", err)
		return nil, err
	}

	t := newTask(j, o.buffer)

	o.mu.Lock()
	if err := o.transition(StateRunning); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.current = t
	o.segments = 0
	o.lastErr = nil
	o.mu.Unlock()

	go o.deliver(t)
	go o.run(t, ectx)

	return t, nil
}

// Join blocks until the current job, if any, has finished and all of its
// events were delivered.
func (o *Orchestrator) Join() {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t != nil {
		<-t.done
	}
}

// Wait is Join bounded by ctx. It returns the last run's error.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Wait(ctx)
}

// Cancel cancels the running job. It reports whether a job was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	t := o.current
	o.mu.Unlock()
	if t == nil {
		return false
	}
	return t.Cancel()
}

// Current returns the most recently submitted task, or nil.
func (o *Orchestrator) Current() *Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Status returns a snapshot of the slot. Segments counts delivered segment
// events; the state leaves running only after the sink handled the terminal
// event.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		State:    o.state,
		Segments: o.segments,
		Err:      o.lastErr,
	}
	if o.current != nil {
		st.JobID = o.current.ID()
	}
	return st
}

// transition must be called with o.mu held.
func (o *Orchestrator) transition(to State) error {
	if !validTransition(o.state, to) {
		return fmt.Errorf("worker: invalid transition: %s -> %s", o.state, to)
	}
	o.state = to
	return nil
}

func (o *Orchestrator) run(t *Task, ectx engine.Context) {
	defer close(t.events)
	defer t.cancel()

	j := t.job
	log := o.log.With("job_id", j.ID, "handle", int(j.Handle))
	metrics := o.recorder.StartJob(j.ID, int(j.Handle), len(j.Audio))

	var (
		segments []engine.Segment
		total    int
	)
	cb := engine.Callbacks{
		NewSegments: func(nNew int) {
			if nNew <= 0 {
				return
			}
			total += nNew
			for i := total - nNew; i < total; i++ {
				seg := ectx.Segment(i)
				segments = append(segments, seg)
				metrics.RecordSegment(i, len(seg.Tokens))

				t.events <- job.Event{
					JobID:   j.ID,
					Kind:    job.EventSegment,
					Index:   i,
					Segment: seg,
				}
			}
		},
		Abort: t.Cancelled,
	}

	timings, err := j.Run(t.ctx, ectx, cb)
	switch {
	case err == nil:
	case t.Cancelled():
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
	default:
		err = fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	log.Info("job timings",
		"samples", timings.Samples,
		"segments", timings.Segments,
		"elapsed_ms", timings.Elapsed.Milliseconds(),
	)
	metrics.Finish(err)
	t.setErr(err)

	if err != nil {
		t.events <- job.Event{JobID: j.ID, Kind: job.EventFailed, Index: len(segments), Err: err}
		return
	}
	t.events <- job.Event{JobID: j.ID, Kind: job.EventDone, Index: len(segments), Segments: segments}
}

// deliver hands events to the sink and settles the slot once the sink has
// seen the terminal event.
func (o *Orchestrator) deliver(t *Task) {
	defer close(t.done)
	for ev := range t.events {
		if o.sink != nil {
			o.sink(ev)
		}
		switch {
		case ev.Kind == job.EventSegment:
			o.mu.Lock()
			o.segments++
			o.mu.Unlock()
		case ev.Terminal():
			o.settle(ev.Err)
		}
	}
}

func (o *Orchestrator) settle(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := StateCompleted
	if err != nil {
		next = StateFailed
	}
	if terr := o.transition(next); terr != nil {
		o.log.Error("state transition failed", "error", terr)
	}
	o.lastErr = err
}
