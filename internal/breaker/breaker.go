// Package breaker implements a per-function circuit breaker, adapted
// from the teacher's internal/drivers.CircuitBreaker: same tri-state
// machine and mutex-guarded counters, but a Breaker has no reset-timeout
// clock of its own: it leaves the open state only on an explicit
// AttemptReset, which Registry.RunResetTimer issues periodically.
package breaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of closed, open, half-open.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker gates calls for a single function id.
type Breaker struct {
	mu sync.Mutex

	threshold int
	state     State
	failures  int

	log *zap.Logger
}

// New builds a closed breaker that opens after threshold consecutive
// failures.
func New(threshold int, log *zap.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{threshold: threshold, state: StateClosed, log: log}
}

// Allow reports whether a request may proceed: true in the closed and
// half-open states. A half-open breaker does not limit itself to one
// probe at a time; it admits every request until the ingress handler
// records the outcome with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateOpen
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RecordSuccess resets the failure counter and closes the breaker
// regardless of its prior state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateClosed {
		b.log.Info("breaker closed", zap.String("prior_state", b.state.String()))
	}
	b.state = StateClosed
}

// RecordFailure increments the failure counter. In the half-open
// state any failure reopens the breaker immediately; in the closed
// state it opens only once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.log.Warn("breaker reopened on probe failure")
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.log.Warn("breaker opened", zap.Int("failures", b.failures))
	}
}

// AttemptReset transitions open to half-open. It is a no-op in any
// other state.
func (b *Breaker) AttemptReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.state = StateHalfOpen
		b.log.Info("breaker half-open")
	}
}

// Registry tracks one Breaker per function id, created lazily.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	log       *zap.Logger
}

// NewRegistry builds an empty registry using threshold for every
// breaker it creates.
func NewRegistry(threshold int, log *zap.Logger) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		log:       log,
	}
}

// Get returns the breaker for functionID, creating it on first use.
func (r *Registry) Get(functionID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[functionID]
	if !ok {
		b = New(r.threshold, r.log.With(zap.String("function_id", functionID)))
		r.breakers[functionID] = b
	}
	return b
}

// SetThreshold updates the failure threshold applied to breakers
// created from now on, for config hot-reload. Existing breakers keep
// their original threshold to avoid retroactively flipping an
// in-flight decision.
func (r *Registry) SetThreshold(threshold int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threshold = threshold
}

// AttemptResetAll calls AttemptReset on every breaker currently known
// to the registry. It is meant to be driven by a timer so an open
// breaker with no fallback version eventually gets a half-open probe.
func (r *Registry) AttemptResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.AttemptReset()
	}
}

// RunResetTimer blocks, calling AttemptResetAll every interval until
// ctx is cancelled. Grounded on the reconciler's own ticking-goroutine
// shape (internal/reconciler/reconciler.go's Run).
func (r *Registry) RunResetTimer(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.AttemptResetAll()
		}
	}
}

// Snapshot returns the current state of every known breaker.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for id, b := range r.breakers {
		out[id] = b.State()
	}
	return out
}
