package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/job"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/service"
)

// stalledStream accepts the ready event and then blocks every Send until
// release is closed.
type stalledStream struct {
	grpc.ServerStream
	ctx     context.Context
	ready   chan struct{}
	release chan struct{}
	sent    []*Event
}

func (s *stalledStream) Context() context.Context { return s.ctx }

func (s *stalledStream) Send(ev *Event) error {
	s.sent = append(s.sent, ev)
	if ev.Kind == EventReady {
		close(s.ready)
		return nil
	}
	<-s.release
	return nil
}

func TestEventsReportsOverflow(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(engine.NewStubEngine(logger), logger, service.Options{
		Output:           io.Discard,
		SubscriberBuffer: 1,
	})
	t.Cleanup(func() { _ = svc.Close() })
	srv := New(config.Config{Language: "auto"}, logger, svc)

	stream := &stalledStream{
		ctx:     context.Background(),
		ready:   make(chan struct{}),
		release: make(chan struct{}),
	}
	result := make(chan error, 1)
	go func() { result <- srv.Events(&EventsRequest{}, stream) }()

	select {
	case <-stream.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("events stream never became ready")
	}

	h := svc.Init("/models/ggml-base.bin")
	if code := svc.Transcribe(h, make([]float32, 10*engine.SampleRate), service.Request{}); code != service.CodeStarted {
		t.Fatalf("Transcribe = %d", code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	close(stream.release)

	select {
	case err := <-result:
		if status.Code(err) != codes.ResourceExhausted {
			t.Fatalf("Events error = %v, want ResourceExhausted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Events did not return after overflow")
	}
	for i, ev := range stream.sent[1:] {
		if ev.Kind != "segment" || ev.Index != int32(i) {
			t.Fatalf("event %d = %+v, want segment %d without gaps", i, ev, i)
		}
	}
}

func TestToEventCarriesSpeakerTurn(t *testing.T) {
	u := service.Update{}
	u.Kind = job.EventSegment
	u.Segment = engine.Segment{T0: 0, T1: 100, Tokens: []engine.Token{{Text: " hi", P: 0.5}}, SpeakerTurn: true}
	ev := toEvent(u)
	if !ev.SpeakerTurn || ev.Text != " hi" || len(ev.Tokens) != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}
