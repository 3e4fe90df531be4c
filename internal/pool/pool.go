// Package pool is the per-function hot instance pool: a LIFO stack of
// compiled, instantiated wazero modules bounded by a per-function cap
// and a global idle timeout. Grounded on the teacher's
// drivers.WASMPlugin (internal/drivers/wasm.go: wazero.NewRuntime +
// Instantiate), generalised from a single long-lived plugin into a
// pool of short-lived borrowed instances keyed by function id.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// ErrPoolExhausted is returned by Acquire when the per-function cap
// is reached and no idle instance is available.
var ErrPoolExhausted = errors.New("pool: exhausted")

// Instance is a borrowed, exclusively-owned execution unit. The pool
// never resets its guest memory between uses; the ABI's fixed request
// slots are simply overwritten on every call.
type Instance struct {
	Module   api.Module
	Compiled wazero.CompiledModule

	functionID string
	lastUsed   time.Time
	discard    bool
}

// Discard marks the instance to be dropped instead of returned to the
// pool on Release, for callers that detected a deadline overrun or a
// guest trap.
func (i *Instance) Discard() {
	i.discard = true
}

type stack struct {
	mu        sync.Mutex
	instances []*Instance
	size      int // count ever created, bounds compile+instantiate cost

	// runtime is scoped to this function id so its RuntimeConfig can
	// pin the memory page ceiling to the function's declared
	// memory_pages; wazero has no per-module override, only
	// per-runtime, so each function id gets its own runtime rather
	// than sharing one across functions with different declarations.
	runtime     wazero.Runtime
	memoryPages uint32
}

// Pool manages one LIFO stack of instances per function id.
type Pool struct {
	ctx         context.Context
	maxPerFn    int
	idleTimeout time.Duration

	mu     sync.Mutex
	stacks map[string]*stack

	log *zap.Logger
}

// New builds a pool capped at maxPerFn hot instances per function id.
func New(ctx context.Context, maxPerFn int, idleTimeout time.Duration, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		ctx:         ctx,
		maxPerFn:    maxPerFn,
		idleTimeout: idleTimeout,
		stacks:      make(map[string]*stack),
		log:         log,
	}
}

// stackFor returns the stack for functionID, creating its dedicated
// wazero runtime (memory-capped to memoryPages) on first use.
func (p *Pool) stackFor(functionID string, memoryPages uint32) *stack {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stacks[functionID]
	if !ok {
		cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(memoryPages)
		s = &stack{
			runtime:     wazero.NewRuntimeWithConfig(p.ctx, cfg),
			memoryPages: memoryPages,
		}
		p.stacks[functionID] = s
	}
	return s
}

// Acquire returns a ready instance for functionID, compiling and
// instantiating moduleBytes if nothing usable is pooled. memoryPages
// is applied only as the function's runtime memory ceiling, fixed by
// the first call that creates the function's stack; the instance's
// initial memory size is whatever the module itself declares, so
// min = max = memoryPages is not enforced.
func (p *Pool) Acquire(ctx context.Context, functionID string, moduleBytes []byte, memoryPages uint32) (*Instance, error) {
	s := p.stackFor(functionID, memoryPages)

	s.mu.Lock()
	cutoff := time.Now().Add(-p.idleTimeout)
	for len(s.instances) > 0 {
		top := s.instances[len(s.instances)-1]
		s.instances = s.instances[:len(s.instances)-1]
		if top.lastUsed.Before(cutoff) {
			p.closeInstance(top)
			s.size--
			continue
		}
		top.lastUsed = time.Now()
		s.mu.Unlock()
		return top, nil
	}
	size := s.size
	s.mu.Unlock()

	if size >= p.maxPerFn {
		return nil, ErrPoolExhausted
	}

	compiled, err := s.runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig()
	mod, err := s.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	s.mu.Lock()
	s.size++
	s.mu.Unlock()

	return &Instance{
		Module:     mod,
		Compiled:   compiled,
		functionID: functionID,
		lastUsed:   time.Now(),
	}, nil
}

// Release returns inst to its function's stack if there is room and
// it was not marked for discard; otherwise it is closed.
func (p *Pool) Release(ctx context.Context, inst *Instance) {
	s := p.stackFor(inst.functionID, 0)

	s.mu.Lock()
	if !inst.discard && len(s.instances) < p.maxPerFn {
		inst.lastUsed = time.Now()
		s.instances = append(s.instances, inst)
		s.mu.Unlock()
		return
	}
	s.size--
	s.mu.Unlock()

	p.closeInstance(inst)
}

func (p *Pool) closeInstance(inst *Instance) {
	ctx := context.Background()
	if err := inst.Module.Close(ctx); err != nil {
		p.log.Warn("pool: close module failed", zap.String("function_id", inst.functionID), zap.Error(err))
	}
	if err := inst.Compiled.Close(ctx); err != nil {
		p.log.Warn("pool: close compiled module failed", zap.String("function_id", inst.functionID), zap.Error(err))
	}
}

// HotCount reports the number of currently pooled (idle) instances
// for functionID, for the admin debug surface and invariant tests.
func (p *Pool) HotCount(functionID string) int {
	s := p.stackFor(functionID, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Close tears down every function's wazero runtime and pooled
// instance.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, s := range p.stacks {
		s.mu.Lock()
		for _, inst := range s.instances {
			p.closeInstance(inst)
		}
		s.instances = nil
		s.mu.Unlock()
		if err := s.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
