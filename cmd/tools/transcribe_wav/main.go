package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/service"
	"github.com/nupi-ai/plugin-stt-whisper-host/internal/transcript"
)

type options struct {
	model     string
	input     string
	language  string
	threads   int
	translate bool
	maxLen    int
	diarize   bool
	mode      transcript.Mode
	comma     bool
	stub      bool
	timeout   time.Duration
}

func main() {
	var (
		opts options
		mode string
	)
	flag.StringVar(&opts.model, "model", "", "path to the whisper model file")
	flag.StringVar(&opts.input, "file", "", "16 kHz mono or stereo 16-bit WAV file")
	flag.StringVar(&opts.language, "language", "auto", "spoken language or auto")
	flag.IntVar(&opts.threads, "threads", 0, "requested thread count (0 picks from hardware)")
	flag.BoolVar(&opts.translate, "translate", false, "translate to English")
	flag.IntVar(&opts.maxLen, "max-len", 0, "maximum segment length in characters (1 = one token per segment)")
	flag.BoolVar(&opts.diarize, "diarize", false, "enable speaker turn detection")
	flag.StringVar(&mode, "mode", "timestamps", "output mode: streaming, aggregate or timestamps")
	flag.BoolVar(&opts.comma, "comma", false, "use a comma as millisecond separator in timestamps")
	flag.BoolVar(&opts.stub, "stub", false, "use the stub engine")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "maximum transcription time")
	flag.Parse()

	if strings.TrimSpace(opts.model) == "" || strings.TrimSpace(opts.input) == "" {
		fmt.Fprintln(os.Stderr, "transcribe_wav: --model and --file are required")
		os.Exit(2)
	}
	parsed, err := transcript.ParseMode(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transcribe_wav: %v\n", err)
		os.Exit(2)
	}
	opts.mode = parsed

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "transcribe_wav: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) (err error) {
	samples, err := audio.LoadWAV(opts.input)
	if err != nil {
		return err
	}

	eng, engineErr := engine.New(config.Config{UseStubEngine: opts.stub}, logger)
	if engineErr != nil {
		logger.Warn("engine initialised with warnings", "error", engineErr)
	}

	svc := service.New(eng, logger, service.Options{
		Output:         out,
		Mode:           opts.mode,
		TimestampComma: opts.comma,
	})
	defer func() {
		err = errors.Join(err, svc.Close())
	}()

	handle := svc.Init(opts.model)
	if handle == 0 {
		return fmt.Errorf("failed to load model %q", opts.model)
	}

	code := svc.Transcribe(handle, samples, service.Request{
		Language:         opts.language,
		Threads:          opts.threads,
		Translate:        opts.translate,
		MaxSegmentLength: opts.maxLen,
		Diarize:          opts.diarize,
	})
	if code != service.CodeStarted {
		return fmt.Errorf("transcribe returned %d", code)
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := svc.Wait(waitCtx); err != nil {
		svc.Cancel()
		return err
	}
	return nil
}
