// Package service exposes the init/free/transcribe control surface over a
// context pool and a single-flight worker.
package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/job"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/pool"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/telemetry"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/threads"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/transcript"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/worker"
)

// Transcribe result codes.
const (
	CodeStarted       = 0
	CodeInvalidHandle = -1
	CodeNotBound      = -2
)

const defaultSubscriberBuffer = 256

// Request holds the caller-supplied parameters of a transcription.
type Request struct {
	Language         string
	Threads          int
	Translate        bool
	MaxSegmentLength int
	Diarize          bool
	// Mode overrides the service default result mode when set.
	Mode transcript.Mode
}

// Options configures a Service. The zero value writes streaming lines to
// stdout.
type Options struct {
	Output              io.Writer
	Mode                transcript.Mode
	TimestampComma      bool
	HardwareConcurrency func() int
	Recorder            *telemetry.Recorder
	EventBuffer         int
	SubscriberBuffer    int
}

// Update is a delivered job event together with the lines it rendered.
type Update struct {
	job.Event
	Mode     transcript.Mode
	Language string
	Lines    []string
}

type renderer struct {
	buf  bytes.Buffer
	w    *transcript.Writer
	lang string
}

// Service owns the context pool and the worker. Control operations wait for
// the running job before acting.
type Service struct {
	log      *slog.Logger
	pool     *pool.Pool
	worker   *worker.Orchestrator
	recorder *telemetry.Recorder

	out     io.Writer
	mode    transcript.Mode
	comma   bool
	hw      func() int
	subSize int

	mu sync.Mutex

	renderMu  sync.Mutex
	renderers map[string]*renderer

	subMu  sync.Mutex
	subs   map[int]*Subscription
	nextID int
}

// New builds a Service on top of eng.
func New(eng engine.Engine, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Mode == "" {
		opts.Mode = transcript.ModeStreaming
	}
	if opts.HardwareConcurrency == nil {
		opts.HardwareConcurrency = runtime.NumCPU
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}

	s := &Service{
		log:       logger.With("component", "service"),
		pool:      pool.New(eng, logger),
		recorder:  opts.Recorder,
		out:       opts.Output,
		mode:      opts.Mode,
		comma:     opts.TimestampComma,
		hw:        opts.HardwareConcurrency,
		subSize:   opts.SubscriberBuffer,
		renderers: make(map[string]*renderer),
		subs:      make(map[int]*Subscription),
	}

	workerOpts := []worker.Option{
		worker.WithSink(s.deliver),
		worker.WithRecorder(opts.Recorder),
	}
	if opts.EventBuffer > 0 {
		workerOpts = append(workerOpts, worker.WithEventBuffer(opts.EventBuffer))
	}
	s.worker = worker.New(s.pool, logger, workerOpts...)
	return s
}

// Init loads modelPath into a free context slot and returns its 1-based
// handle, or 0 when no slot is free or the model failed to load.
func (s *Service) Init(modelPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.Join()

	h, err := s.pool.Allocate(modelPath)
	if errors.Is(err, pool.ErrNoFreeSlot) {
		s.log.Warn("init rejected", "model_path", modelPath, "error", err)
		return 0
	}
	s.recorder.RecordContextAllocated(err)
	if err != nil {
		return 0
	}
	return int(h)
}

// Free releases the context bound to handle. Out-of-range or unbound
// handles are ignored.
func (s *Service) Free(handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.Join()

	if err := s.pool.Release(pool.Handle(handle)); err != nil {
		s.log.Debug("free ignored", "handle", handle, "error", err)
		return
	}
	s.recorder.RecordContextReleased()
}

// Transcribe copies audio and starts decoding it on handle's context. It
// returns CodeStarted, CodeInvalidHandle when handle is out of range, or
// CodeNotBound when its slot is free. Results are delivered asynchronously.
func (s *Service) Transcribe(handle int, audio []float32, req Request) int {
	code, _ := s.Submit(handle, audio, req)
	return code
}

// Submit is Transcribe returning the job id of a started run.
func (s *Service) Submit(handle int, audio []float32, req Request) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hw := s.hw()
	mode := req.Mode
	if mode == "" {
		mode = s.mode
	}
	j := job.New(pool.Handle(handle), audio, job.Params{
		Language:         req.Language,
		Translate:        req.Translate,
		MaxSegmentLength: req.MaxSegmentLength,
		Threads:          threads.Budget(req.Threads, hw),
		Diarize:          req.Diarize,
		Mode:             mode,
	})
	ep := j.Params.EngineParams()

	r := &renderer{lang: ep.Language}
	r.w = transcript.NewWriter(&r.buf, mode, s.comma)
	s.renderMu.Lock()
	s.renderers[j.ID] = r
	s.renderMu.Unlock()

	task, err := s.worker.Submit(j)
	if err != nil {
		s.dropRenderer(j.ID)
		if errors.Is(err, pool.ErrSlotEmpty) {
			return CodeNotBound, ""
		}
		return CodeInvalidHandle, ""
	}

	s.log.Info("processing",
		"job_id", task.ID(),
		"handle", handle,
		"samples", len(j.Audio),
		"seconds", j.Duration().Seconds(),
		"threads", ep.Threads,
		"hardware_concurrency", hw,
		"language", ep.Language,
		"task", ep.Task(),
		"max_len", ep.MaxSegmentLength,
		"mode", string(mode),
	)
	return CodeStarted, task.ID()
}

// Wait blocks until the running job finished or ctx expired.
func (s *Service) Wait(ctx context.Context) error {
	return s.worker.Wait(ctx)
}

// Status reports the state of the execution slot.
func (s *Service) Status() worker.Status {
	return s.worker.Status()
}

// Cancel cancels the running job. It reports whether one was running.
func (s *Service) Cancel() bool {
	return s.worker.Cancel()
}

// Live reports how many contexts are loaded.
func (s *Service) Live() int {
	return s.pool.Live()
}

// ErrSubscriberOverflow is reported by a Subscription that fell behind and
// was closed.
var ErrSubscriberOverflow = errors.New("service: subscriber fell behind")

// Subscription receives delivered updates. A subscriber whose buffer is full
// is closed with ErrSubscriberOverflow instead of skipping updates.
type Subscription struct {
	svc *Service
	id  int
	ch  chan Update
	err error
}

// Updates returns the update channel. It is closed by Close, by Service.Close
// or on overflow.
func (sub *Subscription) Updates() <-chan Update { return sub.ch }

// Err reports why the channel was closed by the service, or nil.
func (sub *Subscription) Err() error {
	sub.svc.subMu.Lock()
	defer sub.svc.subMu.Unlock()
	return sub.err
}

// Close unregisters the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.svc.subMu.Lock()
	defer sub.svc.subMu.Unlock()
	sub.svc.detachLocked(sub, nil)
}

// Subscribe registers a consumer of delivered updates.
func (s *Service) Subscribe() *Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	sub := &Subscription{svc: s, id: s.nextID, ch: make(chan Update, s.subSize)}
	s.nextID++
	s.subs[sub.id] = sub
	return sub
}

// detachLocked must be called with s.subMu held.
func (s *Service) detachLocked(sub *Subscription, err error) {
	if _, ok := s.subs[sub.id]; !ok {
		return
	}
	delete(s.subs, sub.id)
	sub.err = err
	close(sub.ch)
}

// Close waits for the running job, frees every context and closes all
// subscriptions.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.Join()

	live := s.pool.Live()
	err := s.pool.Close()
	for i := 0; i < live; i++ {
		s.recorder.RecordContextReleased()
	}

	s.subMu.Lock()
	for _, sub := range s.subs {
		s.detachLocked(sub, nil)
	}
	s.subMu.Unlock()
	return err
}

func (s *Service) deliver(ev job.Event) {
	s.renderMu.Lock()
	r := s.renderers[ev.JobID]
	s.renderMu.Unlock()
	if r == nil {
		s.log.Warn("event for unknown job", "job_id", ev.JobID, "kind", ev.Kind)
		return
	}

	r.buf.Reset()
	var err error
	switch ev.Kind {
	case job.EventSegment:
		err = r.w.Segment(ev.Segment)
	case job.EventDone:
		err = r.w.Complete(ev.Segments)
	case job.EventFailed:
		s.log.Error("transcription failed", "job_id", ev.JobID, "segments", ev.Index, "error", ev.Err)
	}
	if err != nil {
		s.log.Warn("render failed", "job_id", ev.JobID, "error", err)
	}

	var lines []string
	if r.buf.Len() > 0 {
		if _, err := s.out.Write(r.buf.Bytes()); err != nil {
			s.log.Warn("output write failed", "job_id", ev.JobID, "error", err)
		}
		lines = strings.Split(strings.TrimSuffix(r.buf.String(), "\n"), "\n")
	}
	if ev.Terminal() {
		s.dropRenderer(ev.JobID)
	}

	s.broadcast(Update{Event: ev, Mode: r.w.Mode(), Language: r.lang, Lines: lines})
}

func (s *Service) broadcast(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, sub := range s.subs {
		select {
		case sub.ch <- u:
		default:
			s.log.Warn("subscriber fell behind, closing", "subscriber", id, "job_id", u.JobID, "kind", u.Kind)
			s.detachLocked(sub, ErrSubscriberOverflow)
		}
	}
}

func (s *Service) dropRenderer(id string) {
	s.renderMu.Lock()
	delete(s.renderers, id)
	s.renderMu.Unlock()
}
