package llm

import (
	"altwriter/internal/logger"
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TracedBackend wraps a Backend and records call counts, latency and a
// rough token estimate for the run summary.
type TracedBackend struct {
	backend Backend
	log     zerolog.Logger

	calls     atomic.Int64
	failures  atomic.Int64
	tokens    atomic.Int64
	latencyMs atomic.Int64
}

// CallStats is a snapshot of a TracedBackend's counters.
type CallStats struct {
	Calls           int64
	Failures        int64
	EstimatedTokens int64
	TotalLatency    time.Duration
}

// NewTracedBackend wraps backend.
func NewTracedBackend(backend Backend) *TracedBackend {
	return &TracedBackend{backend: backend, log: logger.For("trace")}
}

func (t *TracedBackend) Name() string { return t.backend.Name() }

func (t *TracedBackend) Generate(ctx context.Context, system, user string, params ModelParams) (string, error) {
	start := time.Now()
	result, err := t.backend.Generate(ctx, system, user, params)
	latency := time.Since(start)

	t.calls.Add(1)
	t.latencyMs.Add(latency.Milliseconds())
	t.tokens.Add(int64(estimateTokens(system+user, result)))
	if err != nil {
		t.failures.Add(1)
	}

	t.log.Debug().
		Str("backend", t.backend.Name()).
		Str("mode", string(params.Mode)).
		Int64("latency_ms", latency.Milliseconds()).
		Bool("ok", err == nil).
		Msg("backend call")
	return result, err
}

// Stats returns the counters accumulated so far.
func (t *TracedBackend) Stats() CallStats {
	return CallStats{
		Calls:           t.calls.Load(),
		Failures:        t.failures.Load(),
		EstimatedTokens: t.tokens.Load(),
		TotalLatency:    time.Duration(t.latencyMs.Load()) * time.Millisecond,
	}
}

// estimateTokens is a rough count; Japanese text runs close to one token per rune.
func estimateTokens(prompt, completion string) int {
	return len([]rune(prompt)) + len([]rune(completion))
}
