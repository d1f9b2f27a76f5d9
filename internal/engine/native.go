//go:build whispercpp

// This file contains the NativeEngine implementation backed by whisper.cpp.
// libwhisper and whisper.h must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH.

package engine

/*
#cgo LDFLAGS: -lwhisper -lggml -lggml-base -lstdc++ -lm

#include <stdlib.h>
#include <whisper.h>

bool whisperGoAbort(void * user_data);
void whisperGoNewSegment(struct whisper_context * ctx, struct whisper_state * state, int n_new, void * user_data);
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/cgo"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/adapterinfo"
)

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return true }

// NativeEngine loads whisper.cpp models.
type NativeEngine struct {
	log      *slog.Logger
	settings nativeSettings
}

// NewNativeEngine returns an Engine backed by whisper.cpp.
func NewNativeEngine(logger *slog.Logger, opts NativeOptions) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	settings := opts.resolve()
	return &NativeEngine{
		log: logger.With(
			"component", "engine.native",
			"adapter", adapterinfo.Info.Slug,
		),
		settings: settings,
	}, nil
}

// Load implements the Engine interface.
func (e *NativeEngine) Load(modelPath string) (Context, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("whisper: model path required")
	}
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(e.settings.useGPU)
	cParams.flash_attn = C.bool(e.settings.flashAttention)

	wctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if wctx == nil {
		return nil, fmt.Errorf("whisper: failed to initialise context for %s", modelPath)
	}
	e.log.Info("model loaded",
		"model_path", modelPath,
		"multilingual", C.whisper_is_multilingual(wctx) != 0,
		"use_gpu", e.settings.useGPU,
	)
	return &nativeContext{
		log:      e.log.With("model_path", modelPath),
		settings: e.settings,
		ctx:      wctx,
	}, nil
}

// nativeContext owns one whisper context. Decoder state lives inside the
// context, so segments of the last run stay readable until the next Full.
type nativeContext struct {
	log      *slog.Logger
	settings nativeSettings

	inferMu sync.Mutex

	mu       sync.RWMutex
	ctx      *C.struct_whisper_context
	segments int
	timings  Timings
}

// decodeRun is stored behind the cgo.Handle handed to whisper callbacks.
type decodeRun struct {
	ctx context.Context
	cb  Callbacks
	c   *nativeContext
}

func (r *decodeRun) aborted() bool { return r.cb.aborted(r.ctx) }

func (r *decodeRun) newSegments(n int) {
	r.c.mu.Lock()
	r.c.segments += n
	r.c.mu.Unlock()
	if r.cb.NewSegments != nil {
		r.cb.NewSegments(n)
	}
}

func (c *nativeContext) Full(ctx context.Context, samples []float32, params Params, cb Callbacks) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.inferMu.Lock()
	defer c.inferMu.Unlock()

	c.mu.Lock()
	wctx := c.ctx
	c.segments = 0
	c.mu.Unlock()
	if wctx == nil {
		return errors.New("whisper: context closed")
	}
	if len(samples) == 0 {
		return nil
	}

	lang := strings.TrimSpace(params.Language)
	if lang == "" {
		lang = "auto"
	}
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))

	run := &decodeRun{ctx: ctx, cb: cb, c: c}
	handle := cgo.NewHandle(run)
	defer handle.Delete()

	wparams := c.fullParams(params)
	wparams.language = cLang
	wparams.new_segment_callback = (C.whisper_new_segment_callback)(C.whisperGoNewSegment)
	wparams.new_segment_callback_user_data = unsafe.Pointer(&handle)
	wparams.abort_callback = (C.ggml_abort_callback)(C.whisperGoAbort)
	wparams.abort_callback_user_data = unsafe.Pointer(&handle)

	c.log.Debug("system info",
		"threads", int(wparams.n_threads),
		"info", C.GoString(C.whisper_print_system_info()),
	)

	start := time.Now()
	ret := C.whisper_full(wctx, wparams, (*C.float)(unsafe.Pointer(&samples[0])), C.int(len(samples)))
	C.whisper_print_timings(wctx)

	c.mu.Lock()
	c.timings.Samples += len(samples)
	c.timings.Segments = c.segments
	c.timings.Elapsed += time.Since(start)
	c.mu.Unlock()

	if ret != 0 {
		if run.aborted() {
			return abortError(ctx)
		}
		return fmt.Errorf("whisper: inference failed with code %d", int(ret))
	}
	return nil
}

func (c *nativeContext) fullParams(params Params) C.struct_whisper_full_params {
	strategy := C.enum_whisper_sampling_strategy(C.WHISPER_SAMPLING_GREEDY)
	if c.settings.beamSize > 1 {
		strategy = C.WHISPER_SAMPLING_BEAM_SEARCH
	}
	wparams := C.whisper_full_default_params(strategy)
	wparams.print_progress = C.bool(false)
	wparams.print_realtime = C.bool(false)
	wparams.print_timestamps = C.bool(false)
	wparams.print_special = C.bool(false)
	wparams.translate = C.bool(params.Translate)
	wparams.token_timestamps = C.bool(params.TokenTimestamps)
	wparams.split_on_word = C.bool(params.SplitOnWord)
	wparams.max_len = C.int(params.MaxSegmentLength)
	wparams.offset_ms = 0
	wparams.tdrz_enable = C.bool(params.Diarize)
	if params.Threads > 0 {
		wparams.n_threads = C.int(params.Threads)
	}
	if c.settings.beamSize > 1 {
		wparams.beam_search.beam_size = C.int(c.settings.beamSize)
	}
	wparams.temperature_inc = C.float(c.settings.temperatureInc)
	if c.settings.audioCtx > 0 {
		wparams.audio_ctx = C.int(c.settings.audioCtx)
	}
	if c.settings.maxTokens > 0 {
		wparams.max_tokens = C.int(c.settings.maxTokens)
	}
	return wparams
}

func (c *nativeContext) NumSegments() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.segments
}

// Segment reads segment i of the current run. Special tokens are skipped.
func (c *nativeContext) Segment(i int) Segment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ctx == nil || i < 0 || i >= c.segments {
		return Segment{}
	}

	ci := C.int(i)
	eot := C.whisper_token_eot(c.ctx)
	n := int(C.whisper_full_n_tokens(c.ctx, ci))
	tokens := make([]Token, 0, n)
	for j := 0; j < n; j++ {
		cj := C.int(j)
		if C.whisper_full_get_token_id(c.ctx, ci, cj) >= eot {
			continue
		}
		tokens = append(tokens, Token{
			Text: C.GoString(C.whisper_full_get_token_text(c.ctx, ci, cj)),
			P:    float32(C.whisper_full_get_token_p(c.ctx, ci, cj)),
		})
	}
	return Segment{
		T0:          int64(C.whisper_full_get_segment_t0(c.ctx, ci)),
		T1:          int64(C.whisper_full_get_segment_t1(c.ctx, ci)),
		Tokens:      tokens,
		SpeakerTurn: bool(C.whisper_full_get_segment_speaker_turn_next(c.ctx, ci)),
	}
}

func (c *nativeContext) ResetTimings() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings = Timings{}
	if c.ctx != nil {
		C.whisper_reset_timings(c.ctx)
	}
}

func (c *nativeContext) Timings() Timings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timings
}

func (c *nativeContext) Close() error {
	c.inferMu.Lock()
	defer c.inferMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		C.whisper_free(c.ctx)
		c.ctx = nil
	}
	c.segments = 0
	return nil
}

//export whisperGoAbort
func whisperGoAbort(userData unsafe.Pointer) C.bool {
	if shouldAbort(userData) {
		return C.bool(true)
	}
	return C.bool(false)
}

//export whisperGoNewSegment
func whisperGoNewSegment(_ *C.struct_whisper_context, _ *C.struct_whisper_state, nNew C.int, userData unsafe.Pointer) {
	notifySegments(userData, int(nNew))
}
