package engine

import (
	"errors"
	"log/slog"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
)

// ErrNativeEngineUnavailable indicates that the binary was built without the
// whispercpp tag.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// ErrAborted is returned by Full when the Abort callback stopped decoding.
var ErrAborted = errors.New("engine: decode aborted")

// New returns the Engine selected by cfg. When the native backend is missing
// it falls back to the stub and reports ErrNativeEngineUnavailable alongside
// a usable engine.
func New(cfg config.Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UseStubEngine {
		logger.Warn("stub engine forced by configuration")
		return NewStubEngine(logger), nil
	}

	if NativeAvailable() {
		native, err := NewNativeEngine(logger, NativeOptionsFromConfig(cfg))
		if err != nil {
			logger.Error("native engine initialisation failed; using stub", "error", err)
			return NewStubEngine(logger), err
		}
		logger.Info("native engine ready")
		return native, nil
	}

	logger.Warn("native backend disabled at build time; using stub engine")
	return NewStubEngine(logger), ErrNativeEngineUnavailable
}
