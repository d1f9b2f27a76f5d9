//go:build !whispercpp

package engine

import "log/slog"

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeEngine returns an error when the native backend is not built.
func NewNativeEngine(*slog.Logger, NativeOptions) (Engine, error) {
	return nil, ErrNativeEngineUnavailable
}
