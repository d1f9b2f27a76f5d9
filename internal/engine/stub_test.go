package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestStub(t *testing.T) Context {
	t.Helper()
	eng := NewStubEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, err := eng.Load("/models/ggml-base.en.bin")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestStubLoadRejectsEmptyPath(t *testing.T) {
	if _, err := NewStubEngine(nil).Load("  "); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestStubFullEmitsSegmentPerSecond(t *testing.T) {
	sctx := newTestStub(t)
	audio := make([]float32, SampleRate*5/2) // 2.5s

	var calls []int
	err := sctx.Full(context.Background(), audio, Params{Language: "en"}, Callbacks{
		NewSegments: func(n int) { calls = append(calls, n) },
	})
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	if got := sctx.NumSegments(); got != 3 {
		t.Fatalf("NumSegments = %d, want 3", got)
	}
	if len(calls) != 3 {
		t.Fatalf("callback calls = %v, want 3 calls", calls)
	}

	last := sctx.Segment(2)
	if last.T0 != 200 || last.T1 != 250 {
		t.Fatalf("last segment times = [%d,%d], want [200,250]", last.T0, last.T1)
	}
	if want := " [stub:ggml-base.en] segment 2"; last.Text() != want {
		t.Fatalf("last segment text = %q, want %q", last.Text(), want)
	}

	timings := sctx.Timings()
	if timings.Samples != len(audio) || timings.Segments != 3 {
		t.Fatalf("unexpected timings: %+v", timings)
	}
	sctx.ResetTimings()
	if got := sctx.Timings(); got.Samples != 0 {
		t.Fatalf("timings not reset: %+v", got)
	}
}

func TestStubFullOneTokenSegments(t *testing.T) {
	sctx := newTestStub(t)
	audio := make([]float32, SampleRate)

	total := 0
	err := sctx.Full(context.Background(), audio, Params{MaxSegmentLength: 1}, Callbacks{
		NewSegments: func(n int) { total += n },
	})
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	if total != 3 || sctx.NumSegments() != 3 {
		t.Fatalf("expected 3 one-token segments, got callbacks=%d segments=%d", total, sctx.NumSegments())
	}
	for i := 0; i < sctx.NumSegments(); i++ {
		if n := len(sctx.Segment(i).Tokens); n != 1 {
			t.Fatalf("segment %d has %d tokens, want 1", i, n)
		}
	}
}

func TestStubFullAbortsBetweenSegments(t *testing.T) {
	sctx := newTestStub(t)
	audio := make([]float32, SampleRate*4)

	seen := 0
	err := sctx.Full(context.Background(), audio, Params{}, Callbacks{
		NewSegments: func(n int) { seen += n },
		Abort:       func() bool { return seen >= 2 },
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if sctx.NumSegments() != 2 {
		t.Fatalf("NumSegments = %d, want 2", sctx.NumSegments())
	}
}

func TestStubFullMarksSpeakerTurns(t *testing.T) {
	sctx := newTestStub(t)
	audio := make([]float32, SampleRate*2)

	if err := sctx.Full(context.Background(), audio, Params{MaxSegmentLength: 1, Diarize: true}, Callbacks{}); err != nil {
		t.Fatalf("Full: %v", err)
	}
	var turns []int
	for i := 0; i < sctx.NumSegments(); i++ {
		if sctx.Segment(i).SpeakerTurn {
			turns = append(turns, i)
		}
	}
	if len(turns) != 2 || turns[0] != 2 || turns[1] != 5 {
		t.Fatalf("speaker turns at %v, want [2 5]", turns)
	}

	if err := sctx.Full(context.Background(), audio, Params{}, Callbacks{}); err != nil {
		t.Fatalf("Full: %v", err)
	}
	for i := 0; i < sctx.NumSegments(); i++ {
		if sctx.Segment(i).SpeakerTurn {
			t.Fatalf("segment %d marked as speaker turn without diarization", i)
		}
	}
}

func TestStubFullHonoursContext(t *testing.T) {
	sctx := newTestStub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sctx.Full(ctx, make([]float32, SampleRate), Params{}, Callbacks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStubFullAfterClose(t *testing.T) {
	sctx := newTestStub(t)
	if err := sctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sctx.Full(context.Background(), make([]float32, 10), Params{}, Callbacks{}); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestSegmentTextConcatenatesTokens(t *testing.T) {
	seg := Segment{Tokens: []Token{{Text: " Hello"}, {Text: ","}, {Text: " world"}}}
	if got := seg.Text(); got != " Hello, world" {
		t.Fatalf("Text() = %q", got)
	}
}
