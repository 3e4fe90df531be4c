// Package admission is the per-function sliding-window admission
// gate, grounded on the teacher's ratelimit.SlidingWindowLimiter
// (internal/ratelimit/distributed.go: per-key timestamp slice,
// pruned on every check). It also tracks an in-flight concurrency
// counter per function id, matching the admission step's concurrency
// cap requirement, and an optional per-function token-bucket burst
// allowance grounded on internal/ratelimit/burst.go's BurstLimiter for
// functions that declare a burst quota.
package admission

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Limiter is a sliding-window admission gate keyed by function id.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration

	inflightMu sync.Mutex
	inflight   map[string]int

	burstMu sync.Mutex
	bursts  map[string]*burstEntry
}

type burstEntry struct {
	limiter *rate.Limiter
	rps     float64
	size    int
}

// New builds a limiter admitting up to limit requests per function id
// within any trailing period window.
func New(limit int, period time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		period:   period,
		inflight: make(map[string]int),
		bursts:   make(map[string]*burstEntry),
	}
}

func (l *Limiter) windowFor(functionID string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[functionID]
	if !ok {
		w = &window{}
		l.windows[functionID] = w
	}
	return w
}

// Allow records an admission attempt and reports whether it is under
// the sliding-window limit for functionID.
func (l *Limiter) Allow(functionID string) bool {
	w := l.windowFor(functionID)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.period)

	kept := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= l.limit {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// SetLimit updates the per-window admission limit applied to future
// checks, for config hot-reload.
func (l *Limiter) SetLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
}

// Acquire increments functionID's in-flight counter and returns a
// release func. Returns ok=false without mutating state when cap is
// reached.
func (l *Limiter) Acquire(functionID string, cap int) (release func(), ok bool) {
	l.inflightMu.Lock()
	defer l.inflightMu.Unlock()

	if l.inflight[functionID] >= cap {
		return nil, false
	}
	l.inflight[functionID]++
	return func() {
		l.inflightMu.Lock()
		defer l.inflightMu.Unlock()
		l.inflight[functionID]--
	}, true
}

// InFlight returns the current in-flight count for functionID.
func (l *Limiter) InFlight(functionID string) int {
	l.inflightMu.Lock()
	defer l.inflightMu.Unlock()
	return l.inflight[functionID]
}

// AllowBurst applies an additional token-bucket check for functionID
// when rps > 0, on top of the sliding window. A function that never
// declares a burst quota (rps <= 0) always passes this check. The
// bucket is created lazily and rebuilt if the function's declared
// rate or burst size changes between calls (e.g. after a redeploy).
func (l *Limiter) AllowBurst(functionID string, rps float64, burstSize int) bool {
	if rps <= 0 {
		return true
	}
	if burstSize <= 0 {
		burstSize = 1
	}

	l.burstMu.Lock()
	defer l.burstMu.Unlock()

	b, ok := l.bursts[functionID]
	if !ok || b.rps != rps || b.size != burstSize {
		b = &burstEntry{
			limiter: rate.NewLimiter(rate.Limit(rps), burstSize),
			rps:     rps,
			size:    burstSize,
		}
		l.bursts[functionID] = b
	}
	return b.limiter.Allow()
}
