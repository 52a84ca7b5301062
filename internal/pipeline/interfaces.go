package pipeline

import (
	"altwriter/internal/core"
	"altwriter/internal/llm"
	"altwriter/internal/parser"
	"altwriter/internal/shaper"
	"altwriter/internal/store"
	"context"
)

// Generator calls the generation backend with retry and mode fallback.
// It reports every failure through the Outcome instead of an error.
type Generator interface {
	Invoke(ctx context.Context, req llm.Request) llm.Outcome
}

// ResponseParser turns raw backend text into candidate strings
type ResponseParser interface {
	Parse(raw string) parser.Result
}

// TextShaper enforces the output policy on candidate strings
type TextShaper interface {
	// Shape always returns exactly RequiredQuota policy-compliant strings
	Shape(entityID string, candidates []core.Candidate) shaper.Result

	// ShapeCopy returns the catch copy, built from a template when text is unusable
	ShapeCopy(entityID, text string) string
}

// Processor runs the full pipeline for one entity
type Processor interface {
	Process(ctx context.Context, entityID string) EntityResult
}

// Sink persists finished records
type Sink interface {
	Write(records []store.Record) ([]string, error)
}

// Compile-time checks
var (
	_ Generator      = (*llm.Client)(nil)
	_ ResponseParser = (*parser.Parser)(nil)
	_ TextShaper     = (*shaper.Shaper)(nil)
	_ Sink           = (*store.Store)(nil)
	_ Processor      = (*Pipeline)(nil)
)
