package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-whisper-host/internal/engine"
)

// Capacity is the maximum number of simultaneously loaded contexts.
const Capacity = 4

var (
	// ErrNoFreeSlot is returned by Allocate when every slot is bound.
	ErrNoFreeSlot = errors.New("pool: no free slot")
	// ErrEngineInit is returned by Allocate when the engine failed to load the model.
	ErrEngineInit = errors.New("pool: engine init failed")
	// ErrInvalidHandle is returned for handles outside [1, Capacity] or, by
	// Release, for handles whose slot is already free.
	ErrInvalidHandle = errors.New("pool: invalid handle")
	// ErrSlotEmpty is returned by Resolve for an in-range handle whose slot is free.
	ErrSlotEmpty = errors.New("pool: slot empty")
)

// Handle identifies a loaded context. Handles are 1-based; 0 is never valid.
type Handle int

func (h Handle) index() (int, bool) {
	i := int(h) - 1
	return i, i >= 0 && i < Capacity
}

// Pool is a fixed-capacity registry of engine contexts. It owns every context
// it hands out; callers borrow them through Resolve.
//
// Pool only guards its own bookkeeping. Callers must make sure no decode is
// using a context before releasing it.
type Pool struct {
	engine engine.Engine
	log    *slog.Logger

	mu    sync.Mutex
	slots [Capacity]engine.Context
}

// New returns an empty pool backed by eng.
func New(eng engine.Engine, logger *slog.Logger) *Pool {
	if eng == nil {
		panic("pool: engine must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		engine: eng,
		log:    logger.With("component", "pool"),
	}
}

// Allocate loads modelPath into the first free slot and returns its handle.
// When no slot is free the engine is not called.
func (p *Pool) Allocate(modelPath string) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if p.slots[i] != nil {
			continue
		}
		ctx, err := p.engine.Load(modelPath)
		if err != nil {
			p.log.Error("context load failed", "slot", i, "model_path", modelPath, "error", err)
			return 0, fmt.Errorf("%w: %w", ErrEngineInit, err)
		}
		if ctx == nil {
			return 0, fmt.Errorf("%w: engine returned no context for %s", ErrEngineInit, modelPath)
		}
		p.slots[i] = ctx
		h := Handle(i + 1)
		p.log.Info("context allocated", "handle", int(h), "model_path", modelPath)
		return h, nil
	}
	return 0, ErrNoFreeSlot
}

// Release closes the context bound to h and frees its slot.
func (p *Pool) Release(h Handle) error {
	i, ok := h.index()
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidHandle, int(h))
	}

	p.mu.Lock()
	ctx := p.slots[i]
	p.slots[i] = nil
	p.mu.Unlock()

	if ctx == nil {
		return fmt.Errorf("%w: %d is not bound", ErrInvalidHandle, int(h))
	}
	if err := ctx.Close(); err != nil {
		p.log.Warn("context close failed", "handle", int(h), "error", err)
	}
	p.log.Info("context released", "handle", int(h))
	return nil
}

// Resolve returns the context bound to h.
func (p *Pool) Resolve(h Handle) (engine.Context, error) {
	i, ok := h.index()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, int(h))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slots[i] == nil {
		return nil, fmt.Errorf("%w: %d", ErrSlotEmpty, int(h))
	}
	return p.slots[i], nil
}

// Live reports how many slots are bound.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ctx := range p.slots {
		if ctx != nil {
			n++
		}
	}
	return n
}

// Close releases every bound context.
func (p *Pool) Close() error {
	p.mu.Lock()
	slots := p.slots
	p.slots = [Capacity]engine.Context{}
	p.mu.Unlock()

	var errs []error
	for i, ctx := range slots {
		if ctx == nil {
			continue
		}
		if err := ctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pool: close handle %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}
