package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder tracks process-level job telemetry. Totals are kept in atomics so
// they can be logged at shutdown; when Metrics is set the same observations
// are exported through OpenTelemetry.
type Recorder struct {
	log     *slog.Logger
	metrics *Metrics

	totalJobs      atomic.Uint64
	activeJobs     atomic.Int64
	failedJobs     atomic.Uint64
	totalSegments  atomic.Uint64
	totalTokens    atomic.Uint64
	totalSamples   atomic.Uint64
	liveContexts   atomic.Int64
	totalContexts  atomic.Uint64
	contextFailure atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalJobs       uint64
	ActiveJobs      int64
	FailedJobs      uint64
	TotalSegments   uint64
	TotalTokens     uint64
	TotalSamples    uint64
	LiveContexts    int64
	TotalContexts   uint64
	ContextFailures uint64
}

// NewRecorder constructs a Recorder using the provided logger. metrics may be
// nil.
func NewRecorder(logger *slog.Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log:     logger.With("component", "telemetry.Recorder"),
		metrics: metrics,
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalJobs:       r.totalJobs.Load(),
		ActiveJobs:      r.activeJobs.Load(),
		FailedJobs:      r.failedJobs.Load(),
		TotalSegments:   r.totalSegments.Load(),
		TotalTokens:     r.totalTokens.Load(),
		TotalSamples:    r.totalSamples.Load(),
		LiveContexts:    r.liveContexts.Load(),
		TotalContexts:   r.totalContexts.Load(),
		ContextFailures: r.contextFailure.Load(),
	}
}

// RecordContextAllocated counts a successful or failed context allocation.
func (r *Recorder) RecordContextAllocated(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.contextFailure.Add(1)
		return
	}
	r.totalContexts.Add(1)
	r.liveContexts.Add(1)
	r.metrics.addLiveContexts(1)
}

// RecordContextReleased counts a released context.
func (r *Recorder) RecordContextReleased() {
	if r == nil {
		return
	}
	r.liveContexts.Add(-1)
	r.metrics.addLiveContexts(-1)
}

// JobMetrics accumulates statistics for a single transcription job.
type JobMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	jobID   string
	handle  int
	samples int

	started  time.Time
	segments int
	tokens   int
	closed   atomic.Bool
}

// StartJob initialises a JobMetrics instance bound to the recorder.
func (r *Recorder) StartJob(jobID string, handle, samples int) *JobMetrics {
	if r == nil {
		return nil
	}

	r.totalJobs.Add(1)
	r.activeJobs.Add(1)
	if samples > 0 {
		r.totalSamples.Add(uint64(samples))
	}

	return &JobMetrics{
		recorder: r,
		log: r.log.With(
			"job_id", jobID,
			"handle", handle,
		),
		jobID:   jobID,
		handle:  handle,
		samples: samples,
		started: time.Now(),
	}
}

// RecordSegment updates counters for an emitted segment. It is called from
// the worker goroutine only.
func (j *JobMetrics) RecordSegment(index, tokens int) {
	if j == nil {
		return
	}
	j.segments++
	j.tokens += tokens
	j.recorder.totalSegments.Add(1)
	j.recorder.totalTokens.Add(uint64(tokens))

	j.log.Debug("segment emitted",
		"index", index,
		"tokens", tokens,
	)
}

// Finish logs a summary and updates active job counters. Only the first call
// has an effect.
func (j *JobMetrics) Finish(err error) {
	if j == nil {
		return
	}
	if !j.closed.CompareAndSwap(false, true) {
		return
	}

	defer j.recorder.activeJobs.Add(-1)

	duration := time.Since(j.started)
	status := "completed"
	if err != nil {
		status = "failed"
		j.recorder.failedJobs.Add(1)
	}
	j.recorder.metrics.recordJob(context.Background(), status, duration, j.segments, j.samples)

	args := []any{
		"duration_ms", duration.Milliseconds(),
		"samples", j.samples,
		"segments", j.segments,
		"tokens", j.tokens,
	}

	if err != nil {
		j.log.Error("job completed with error", append(args, "error", err)...)
		return
	}

	j.log.Info("job completed", args...)
}
