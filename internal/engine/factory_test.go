package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/config"
)

func TestNewUsesStubWhenForced(t *testing.T) {
	cfg := config.Config{UseStubEngine: true}
	eng, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub engine, got %T", eng)
	}
}

func TestNewWithoutStubFlag(t *testing.T) {
	eng, err := New(config.Config{}, nil)
	if NativeAvailable() {
		if err != nil {
			t.Fatalf("expected native engine, got error %v", err)
		}
		if _, ok := eng.(*StubEngine); ok {
			t.Fatal("expected native engine, got stub")
		}
		return
	}
	if !errors.Is(err, ErrNativeEngineUnavailable) {
		t.Fatalf("expected ErrNativeEngineUnavailable, got %v", err)
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub fallback, got %T", eng)
	}
}
