package telemetry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecorderExportsJobMetrics(t *testing.T) {
	m, reader := newTestMetrics(t)
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)), m)

	recorder.RecordContextAllocated(nil)
	job := recorder.StartJob("job-1", 1, 16000)
	job.RecordSegment(0, 2)
	job.RecordSegment(1, 2)
	job.Finish(nil)

	rm := collect(t, reader)

	jobs := findMetric(rm, "whisper_host.jobs")
	if jobs == nil {
		t.Fatal("whisper_host.jobs not found")
	}
	sum, ok := jobs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", jobs.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected job datapoints: %+v", sum.DataPoints)
	}
	if status, _ := sum.DataPoints[0].Attributes.Value("status"); status.AsString() != "completed" {
		t.Fatalf("status attribute = %q", status.AsString())
	}

	segments := findMetric(rm, "whisper_host.segments")
	if segments == nil {
		t.Fatal("whisper_host.segments not found")
	}
	if got := segments.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 2 {
		t.Fatalf("segments = %d, want 2", got)
	}

	live := findMetric(rm, "whisper_host.contexts.live")
	if live == nil {
		t.Fatal("whisper_host.contexts.live not found")
	}
	if got := live.Data.(metricdata.Sum[int64]).DataPoints[0].Value; got != 1 {
		t.Fatalf("live contexts = %d, want 1", got)
	}

	duration := findMetric(rm, "whisper_host.job.duration")
	if duration == nil {
		t.Fatal("whisper_host.job.duration not found")
	}
	if hist := duration.Data.(metricdata.Histogram[float64]); hist.DataPoints[0].Count != 1 {
		t.Fatalf("duration count = %d, want 1", hist.DataPoints[0].Count)
	}
}
