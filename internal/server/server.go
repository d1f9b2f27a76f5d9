package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/job"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/service"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/transcript"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/worker"
)

// Language selection. clientLanguage defers to the language announced by
// the client in request metadata.
const (
	clientLanguage    = "client"
	languageISO1Key   = "nupi.lang.iso1"
	autoLanguage      = "auto"
	maxRequestThreads = 1024
)

// Controller is the control surface the server exposes. *service.Service
// implements it.
type Controller interface {
	Init(modelPath string) int
	Free(handle int)
	Submit(handle int, audio []float32, req service.Request) (int, string)
	Wait(ctx context.Context) error
	Status() worker.Status
	Cancel() bool
	Subscribe() *service.Subscription
}

// Server implements ControlServer on top of a Controller.
type Server struct {
	cfg  config.Config
	log  *slog.Logger
	ctrl Controller
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, ctrl Controller) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if ctrl == nil {
		panic("server: controller must not be nil")
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"language", cfg.Language,
		),
		ctrl: ctrl,
	}
}

// Init loads a model. The configured model path is used when the request
// does not name one.
func (s *Server) Init(_ context.Context, req *InitRequest) (*InitResponse, error) {
	path := strings.TrimSpace(req.ModelPath)
	if path == "" {
		path = s.cfg.ModelPath
	}
	handle := s.ctrl.Init(path)
	s.log.Info("init", "model_path", path, "handle", handle)
	return &InitResponse{Handle: int32(handle)}, nil
}

// Free releases a context slot.
func (s *Server) Free(_ context.Context, req *FreeRequest) (*FreeResponse, error) {
	s.ctrl.Free(int(req.Handle))
	return &FreeResponse{}, nil
}

// Transcribe starts a job and returns the control-surface result code.
func (s *Server) Transcribe(_ context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	if req.Threads < 0 || req.Threads > maxRequestThreads {
		return nil, status.Errorf(codes.InvalidArgument, "threads out of range: %d", req.Threads)
	}
	if req.MaxSegmentLength < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "max_segment_length must be >= 0, got %d", req.MaxSegmentLength)
	}

	mode := transcript.Mode("")
	if strings.TrimSpace(req.Mode) != "" {
		parsed, err := transcript.ParseMode(req.Mode)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		mode = parsed
	}

	requested := strings.TrimSpace(req.Language)
	if requested == "" {
		requested = s.cfg.Language
	}
	threads := int(req.Threads)
	if threads == 0 {
		threads = s.cfg.Threads
	}
	maxLen := int(req.MaxSegmentLength)
	if maxLen == 0 {
		maxLen = s.cfg.MaxSegmentLength
	}

	code, jobID := s.ctrl.Submit(int(req.Handle), req.Audio, service.Request{
		Language:         resolveLanguage(requested, req.Metadata),
		Threads:          threads,
		Translate:        req.Translate,
		MaxSegmentLength: maxLen,
		Diarize:          req.Diarize,
		Mode:             mode,
	})
	if code != service.CodeStarted {
		s.log.Warn("transcribe rejected", "handle", req.Handle, "code", code)
	}
	return &TranscribeResponse{Code: int32(code), JobID: jobID}, nil
}

// Status reports the execution slot.
func (s *Server) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	st := s.ctrl.Status()
	return &StatusResponse{
		State:    string(st.State),
		JobID:    st.JobID,
		Segments: int32(st.Segments),
		Error:    errString(st.Err),
	}, nil
}

// Wait blocks until the running job finished, the request timeout elapsed or
// the call was cancelled.
func (s *Server) Wait(ctx context.Context, req *WaitRequest) (*WaitResponse, error) {
	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	err := s.ctrl.Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, status.Error(codes.DeadlineExceeded, "job still running")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return nil, status.Error(codes.Canceled, "wait cancelled")
	}

	st := s.ctrl.Status()
	return &WaitResponse{State: string(st.State), Error: errString(st.Err)}, nil
}

// Cancel cancels the running job.
func (s *Server) Cancel(context.Context, *CancelRequest) (*CancelResponse, error) {
	return &CancelResponse{Cancelled: s.ctrl.Cancel()}, nil
}

// Events streams job events until the client goes away or the controller
// shuts down. The first message is EventReady. A client that cannot keep up
// gets ResourceExhausted rather than a stream with gaps.
func (s *Server) Events(_ *EventsRequest, stream EventsServer) error {
	sub := s.ctrl.Subscribe()
	defer sub.Close()

	ctx := stream.Context()
	if err := stream.Send(&Event{Kind: EventReady}); err != nil {
		return err
	}
	s.log.Debug("events subscriber attached")

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("events subscriber detached", "error", ctx.Err())
			return nil
		case u, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					s.log.Warn("events subscriber dropped", "error", err)
					return status.Error(codes.ResourceExhausted, err.Error())
				}
				return nil
			}
			if err := stream.Send(toEvent(u)); err != nil {
				s.log.Error("failed to send event", "job_id", u.JobID, "error", err)
				return err
			}
		}
	}
}

func toEvent(u service.Update) *Event {
	ev := &Event{
		Kind:     string(u.Kind),
		JobID:    u.JobID,
		Index:    int32(u.Index),
		Lines:    u.Lines,
		Error:    errString(u.Err),
		Metadata: adapterinfo.TranscriptMetadata(u.JobID, u.Language, string(u.Mode)),
	}
	switch u.Kind {
	case job.EventSegment:
		ev.T0 = u.Segment.T0
		ev.T1 = u.Segment.T1
		ev.Text = u.Segment.Text()
		ev.SpeakerTurn = u.Segment.SpeakerTurn
		ev.Tokens = make([]Token, 0, len(u.Segment.Tokens))
		for _, tok := range u.Segment.Tokens {
			ev.Tokens = append(ev.Tokens, Token{Text: tok.Text, P: tok.P})
		}
	case job.EventDone:
		ev.Segments = int32(len(u.Segments))
	}
	return ev
}

// resolveLanguage maps the configured or requested language to the one sent
// to the engine. "client" defers to the language announced in metadata and
// falls back to auto detection.
func resolveLanguage(requested string, metadata map[string]string) string {
	if requested != clientLanguage {
		return requested
	}
	if lang := strings.TrimSpace(metadata[languageISO1Key]); lang != "" {
		return lang
	}
	return autoLanguage
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
