package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/nupi-ai/plugin-stt-whisper-host"

// Metrics holds the OpenTelemetry instruments of the adapter. A nil *Metrics
// records nothing.
type Metrics struct {
	// JobDuration tracks wall-clock time of a transcription job.
	JobDuration metric.Float64Histogram

	// Jobs counts finished jobs. Use with attribute.String("status", ...).
	Jobs metric.Int64Counter

	// Segments counts emitted segments.
	Segments metric.Int64Counter

	// AudioSeconds counts seconds of audio submitted.
	AudioSeconds metric.Float64Counter

	// LiveContexts tracks the number of loaded contexts.
	LiveContexts metric.Int64UpDownCounter
}

// jobBuckets defines histogram bucket boundaries (in seconds) for decode jobs.
var jobBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates every instrument using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.JobDuration, err = m.Float64Histogram("whisper_host.job.duration",
		metric.WithDescription("Wall-clock duration of transcription jobs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(jobBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Jobs, err = m.Int64Counter("whisper_host.jobs",
		metric.WithDescription("Finished transcription jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("whisper_host.segments",
		metric.WithDescription("Segments emitted by transcription jobs."),
	); err != nil {
		return nil, err
	}
	if met.AudioSeconds, err = m.Float64Counter("whisper_host.audio",
		metric.WithDescription("Seconds of audio submitted for transcription."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if met.LiveContexts, err = m.Int64UpDownCounter("whisper_host.contexts.live",
		metric.WithDescription("Number of loaded inference contexts."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) recordJob(ctx context.Context, status string, d time.Duration, segments, samples int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
	m.Jobs.Add(ctx, 1, attrs)
	m.Segments.Add(ctx, int64(segments))
	m.AudioSeconds.Add(ctx, float64(samples)/sampleRate)
}

func (m *Metrics) addLiveContexts(delta int64) {
	if m == nil {
		return
	}
	m.LiveContexts.Add(context.Background(), delta)
}

// sampleRate mirrors engine.SampleRate without importing the engine package.
const sampleRate = 16000
