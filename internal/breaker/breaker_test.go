package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(3, zap.NewNop())
	assert.True(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestSuccessResetsCounter(t *testing.T) {
	b := New(3, zap.NewNop())
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State(), "counter should have reset on success")
}

func TestHalfOpenLifecycle(t *testing.T) {
	b := New(1, zap.NewNop())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	b.AttemptReset()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.True(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New(1, zap.NewNop())
	b.RecordFailure()
	b.AttemptReset()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistryIsolatesByFunction(t *testing.T) {
	r := NewRegistry(1, zap.NewNop())
	r.Get("fn-a").RecordFailure()

	assert.Equal(t, StateOpen, r.Get("fn-a").State())
	assert.Equal(t, StateClosed, r.Get("fn-b").State())
}

func TestAttemptResetAllProbesEveryOpenBreaker(t *testing.T) {
	r := NewRegistry(1, zap.NewNop())
	r.Get("fn-a").RecordFailure()
	r.Get("fn-b").RecordFailure()
	assert.Equal(t, StateOpen, r.Get("fn-a").State())
	assert.Equal(t, StateOpen, r.Get("fn-b").State())

	r.AttemptResetAll()

	assert.Equal(t, StateHalfOpen, r.Get("fn-a").State())
	assert.Equal(t, StateHalfOpen, r.Get("fn-b").State())
}

func TestRunResetTimerProbesOnATick(t *testing.T) {
	r := NewRegistry(1, zap.NewNop())
	r.Get("fn-a").RecordFailure()
	assert.Equal(t, StateOpen, r.Get("fn-a").State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.RunResetTimer(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return r.Get("fn-a").State() == StateHalfOpen
	}, 200*time.Millisecond, 5*time.Millisecond, "reset timer should have probed the open breaker by now")
}
