package pipeline

import (
	"altwriter/internal/core"
	"altwriter/internal/llm"
	"altwriter/internal/logger"
	"altwriter/internal/store"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the worker count when none is configured
const DefaultConcurrency = 4

// Summary tracks batch execution metrics
type Summary struct {
	RunID     string        `json:"run_id"`
	Entities  int           `json:"entities"`
	Completed int           `json:"completed"`
	Skipped   int           `json:"skipped"` // Never scheduled because the run was cancelled
	Errored   int           `json:"errored"`
	AI        int           `json:"ai_texts"`
	Backfill  int           `json:"backfill_texts"`
	Fallback  int           `json:"fallback_texts"`
	Files     []string      `json:"files,omitempty"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

// Report is the outcome of a batch run. Results holds completed entities in
// input order; skipped entities are absent.
type Report struct {
	Summary   Summary
	Results   []EntityResult
	Cancelled bool
}

// Records returns the sink records for every completed entity
func (r *Report) Records() []store.Record {
	records := make([]store.Record, len(r.Results))
	for i, res := range r.Results {
		records[i] = res.Record()
	}
	return records
}

// ProgressFunc is called after each entity completes
type ProgressFunc func(done, total int, result EntityResult)

// RunnerOption configures a BatchRunner
type RunnerOption func(*BatchRunner)

// WithSink writes completed records after the batch drains
func WithSink(sink Sink) RunnerOption {
	return func(r *BatchRunner) { r.sink = sink }
}

// WithProgress registers a progress callback. Calls are serialized on a
// single goroutine.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *BatchRunner) { r.progress = fn }
}

// WithRunID fixes the run identifier instead of generating one
func WithRunID(id string) RunnerOption {
	return func(r *BatchRunner) { r.runID = id }
}

// BatchRunner processes entities through a bounded worker pool
type BatchRunner struct {
	processor   Processor
	concurrency int
	sink        Sink
	progress    ProgressFunc
	runID       string
	log         zerolog.Logger
}

// NewBatchRunner creates a runner with at most concurrency entities in flight
func NewBatchRunner(processor Processor, concurrency int, opts ...RunnerOption) *BatchRunner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &BatchRunner{
		processor:   processor,
		concurrency: concurrency,
		log:         logger.For("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID returns the identifier of this runner's batch
func (r *BatchRunner) RunID() string { return r.runID }

// Run processes every entity. Cancelling ctx stops scheduling new entities;
// entities already in flight run to Done and are kept. The returned error is
// only set when the sink fails.
func (r *BatchRunner) Run(ctx context.Context, entities []string) (*Report, error) {
	summary := Summary{
		RunID:     r.runID,
		Entities:  len(entities),
		StartTime: time.Now(),
	}

	r.log.Info().
		Str("run_id", r.runID).
		Int("entities", len(entities)).
		Int("concurrency", r.concurrency).
		Msg("batch started")

	results := make([]*EntityResult, len(entities))
	progress := make(chan EntityResult)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		done := 0
		for res := range progress {
			done++
			if r.progress != nil {
				r.progress(done, len(entities), res)
			}
		}
	}()

	// In-flight entities must drain even after cancellation
	workCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, r.concurrency)
	var g errgroup.Group
	cancelled := false

schedule:
	for i, entityID := range entities {
		select {
		case <-ctx.Done():
			cancelled = true
			break schedule
		case sem <- struct{}{}:
		}
		// A slot and the cancellation can become ready together
		if ctx.Err() != nil {
			<-sem
			cancelled = true
			break schedule
		}

		g.Go(func() error {
			defer func() { <-sem }()
			res := r.processOne(workCtx, entityID)
			results[i] = &res
			progress <- res
			return nil
		})
	}

	_ = g.Wait()
	close(progress)
	<-progressDone

	report := &Report{Cancelled: cancelled}
	for _, res := range results {
		if res == nil {
			summary.Skipped++
			continue
		}
		summary.Completed++
		if res.Errored() {
			summary.Errored++
		}
		summary.AI += res.ShapeStats.AI
		summary.Backfill += res.ShapeStats.Backfill
		summary.Fallback += res.ShapeStats.Fallback
		report.Results = append(report.Results, *res)
	}

	if cancelled {
		r.log.Warn().
			Str("run_id", r.runID).
			Int("completed", summary.Completed).
			Int("skipped", summary.Skipped).
			Err(context.Cause(ctx)).
			Msg("batch cancelled, in-flight entities drained")
	}

	var err error
	if r.sink != nil && len(report.Results) > 0 {
		summary.Files, err = r.sink.Write(report.Records())
		if err != nil {
			err = fmt.Errorf("failed to write results: %w", err)
		}
	}

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	report.Summary = summary

	r.log.Info().
		Str("run_id", r.runID).
		Int("completed", summary.Completed).
		Int("errored", summary.Errored).
		Int("ai", summary.AI).
		Int("backfill", summary.Backfill).
		Int("fallback", summary.Fallback).
		Dur("duration", summary.Duration).
		Msg("batch finished")

	return report, err
}

// processOne isolates a single entity: a panic inside its pipeline becomes a
// template-only result instead of taking the batch down.
func (r *BatchRunner) processOne(ctx context.Context, entityID string) (res EntityResult) {
	defer func() {
		if rec := recover(); rec != nil {
			detail := fmt.Sprintf("panic: %v", rec)
			r.log.Error().Str("entity", entityID).Str("panic", fmt.Sprint(rec)).Msg("entity pipeline panicked")
			res = r.recoverResult(entityID, detail)
		}
	}()
	return r.processor.Process(ctx, entityID)
}

// fallbacker is implemented by processors that can build a template-only result
type fallbacker interface {
	Fallback(entityID, detail string) EntityResult
}

func (r *BatchRunner) recoverResult(entityID, detail string) EntityResult {
	if f, ok := r.processor.(fallbacker); ok {
		return f.Fallback(entityID, detail)
	}
	return EntityResult{
		Output:  core.EntityOutput{EntityID: entityID},
		Outcome: llm.Outcome{Kind: llm.Fatal, Detail: detail},
		Trace:   []State{StateStart, StateErrored, StateDone},
	}
}
