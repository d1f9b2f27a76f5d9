package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/server"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/service"
)

const bufSize = 1024 * 1024

func startServer(t *testing.T, cfg config.Config) *server.Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(engine.NewStubEngine(logger), logger, service.Options{Output: io.Discard})
	t.Cleanup(func() { _ = svc.Close() })

	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { lis.Close() })

	grpcServer := grpc.NewServer()
	t.Cleanup(grpcServer.Stop)
	server.RegisterControlServer(grpcServer, server.New(cfg, logger, svc))

	go func() {
		if err := grpcServer.Serve(lis); err != nil &&
			!errors.Is(err, grpc.ErrServerStopped) &&
			!errors.Is(err, net.ErrClosed) &&
			err.Error() != "closed" {
			t.Errorf("Serve() error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return server.NewClient(conn)
}

func testConfig() config.Config {
	return config.Config{
		ListenAddr: "bufconn",
		ModelPath:  "/models/ggml-small.bin",
		Language:   "pl",
		LogLevel:   "debug",
	}
}

func TestTranscribeStreamsEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, testConfig())

	events, err := client.Events(ctx, &server.EventsRequest{})
	if err != nil {
		t.Fatalf("Events error: %v", err)
	}
	ready, err := events.Recv()
	if err != nil {
		t.Fatalf("Recv ready: %v", err)
	}
	if ready.Kind != server.EventReady {
		t.Fatalf("first event = %q, want ready", ready.Kind)
	}

	initResp, err := client.Init(ctx, &server.InitRequest{})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if initResp.Handle != 1 {
		t.Fatalf("handle = %d, want 1", initResp.Handle)
	}

	resp, err := client.Transcribe(ctx, &server.TranscribeRequest{
		Handle: initResp.Handle,
		Audio:  make([]float32, 2*engine.SampleRate),
	})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if resp.Code != service.CodeStarted || resp.JobID == "" {
		t.Fatalf("unexpected transcribe response %+v", resp)
	}

	var got []*server.Event
	for {
		ev, err := events.Recv()
		if err != nil {
			t.Fatalf("Recv error: %v", err)
		}
		got = append(got, ev)
		if ev.Kind == "done" || ev.Kind == "failed" {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("expected 2 segments and done, got %d events", len(got))
	}
	first := got[0]
	if first.Kind != "segment" || first.Index != 0 || first.T0 != 0 || first.T1 != 100 {
		t.Fatalf("unexpected first segment %+v", first)
	}
	if !strings.Contains(first.Text, "[stub:ggml-small]") || len(first.Tokens) != 3 {
		t.Fatalf("unexpected segment text/tokens %+v", first)
	}
	if len(first.Lines) != 4 || first.Lines[0] != "TIME##0##100" {
		t.Fatalf("unexpected rendered lines %v", first.Lines)
	}
	if first.Metadata["language"] != "pl" || first.Metadata["job_id"] != resp.JobID {
		t.Fatalf("unexpected metadata %v", first.Metadata)
	}
	done := got[2]
	if done.Segments != 2 || len(done.Lines) != 1 || done.Lines[0] != "DONE##" {
		t.Fatalf("unexpected done event %+v", done)
	}

	waitResp, err := client.Wait(ctx, &server.WaitRequest{TimeoutMs: 1000})
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if waitResp.State != "completed" || waitResp.Error != "" {
		t.Fatalf("unexpected wait response %+v", waitResp)
	}

	st, err := client.Status(ctx, &server.StatusRequest{})
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if st.State != "completed" || st.Segments != 2 || st.JobID != resp.JobID {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestTranscribeCodes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, testConfig())

	resp, err := client.Transcribe(ctx, &server.TranscribeRequest{Handle: 5, Audio: []float32{0}})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if resp.Code != service.CodeInvalidHandle {
		t.Fatalf("code = %d, want -1", resp.Code)
	}

	initResp, err := client.Init(ctx, &server.InitRequest{ModelPath: "/models/ggml-base.bin"})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if _, err := client.Free(ctx, &server.FreeRequest{Handle: initResp.Handle}); err != nil {
		t.Fatalf("Free error: %v", err)
	}

	resp, err = client.Transcribe(ctx, &server.TranscribeRequest{Handle: initResp.Handle, Audio: []float32{0}})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if resp.Code != service.CodeNotBound {
		t.Fatalf("code = %d, want -2", resp.Code)
	}
}

func TestInitCapacity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, testConfig())
	for want := int32(1); want <= 4; want++ {
		resp, err := client.Init(ctx, &server.InitRequest{})
		if err != nil {
			t.Fatalf("Init error: %v", err)
		}
		if resp.Handle != want {
			t.Fatalf("handle = %d, want %d", resp.Handle, want)
		}
	}
	resp, err := client.Init(ctx, &server.InitRequest{})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if resp.Handle != 0 {
		t.Fatalf("fifth handle = %d, want 0", resp.Handle)
	}
}

func TestTranscribeRejectsInvalidArguments(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, testConfig())

	cases := []*server.TranscribeRequest{
		{Handle: 1, Mode: "xml"},
		{Handle: 1, Threads: -1},
		{Handle: 1, MaxSegmentLength: -2},
	}
	for _, req := range cases {
		_, err := client.Transcribe(ctx, req)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("Transcribe(%+v) error = %v, want InvalidArgument", req, err)
		}
	}
}

func TestIdleWaitAndCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := startServer(t, testConfig())

	waitResp, err := client.Wait(ctx, &server.WaitRequest{})
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if waitResp.State != "idle" {
		t.Fatalf("state = %q, want idle", waitResp.State)
	}

	cancelResp, err := client.Cancel(ctx, &server.CancelRequest{})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if cancelResp.Cancelled {
		t.Fatal("expected no job to cancel")
	}
}
