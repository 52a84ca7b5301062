package pipeline

import (
	"altwriter/internal/core"
	"altwriter/internal/llm"
	"altwriter/internal/logger"
	"altwriter/internal/parser"
	"altwriter/internal/prompt"
	"altwriter/internal/shaper"
	"altwriter/internal/store"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// State is a step of the per-entity state machine
type State string

const (
	StateStart       State = "start"
	StatePromptBuilt State = "prompt_built"
	StateGenerated   State = "generated"
	StateParsed      State = "parsed"
	StateErrored     State = "errored" // Generation failed; shaping runs on an empty candidate list
	StateShaped      State = "shaped"
	StateDone        State = "done"
)

// EntityResult is everything one entity pipeline produced
type EntityResult struct {
	Output     core.EntityOutput
	Candidates []core.Candidate // Final texts with their origin
	Raw        []string         // Parsed AI lines before shaping
	Outcome    llm.Outcome
	Strategy   parser.Strategy
	ShapeStats shaper.Stats
	Trace      []State
	Duration   time.Duration
}

// Errored reports whether the entity went through the Errored state
func (r EntityResult) Errored() bool {
	for _, s := range r.Trace {
		if s == StateErrored {
			return true
		}
	}
	return false
}

// Record converts the result into a sink record
func (r EntityResult) Record() store.Record {
	return store.Record{Output: r.Output, Raw: r.Raw}
}

// Pipeline processes single entities. The digest and policy are shared
// read-only by every concurrent Process call.
type Pipeline struct {
	digest    *core.Digest
	policy    core.Policy
	params    llm.ModelParams
	generator Generator
	parser    ResponseParser
	shaper    TextShaper
	log       zerolog.Logger
}

// NewPipeline creates a pipeline with all dependencies
func NewPipeline(
	digest *core.Digest,
	policy core.Policy,
	params llm.ModelParams,
	generator Generator,
	responseParser ResponseParser,
	textShaper TextShaper,
) *Pipeline {
	return &Pipeline{
		digest:    digest,
		policy:    policy,
		params:    params,
		generator: generator,
		parser:    responseParser,
		shaper:    textShaper,
		log:       logger.For("pipeline"),
	}
}

// Process drives one entity from Start to Done. It never fails: backend
// failures end in the Errored state and the shaper fills the quota from
// templates.
func (p *Pipeline) Process(ctx context.Context, entityID string) EntityResult {
	start := time.Now()
	result := EntityResult{Trace: []State{StateStart}}
	log := p.log.With().Str("entity", entityID).Logger()

	prompts := prompt.ComposeAll(entityID, p.digest, p.policy)
	result.Trace = append(result.Trace, StatePromptBuilt)

	outcome := p.generator.Invoke(ctx, llm.Request{
		EntityID: entityID,
		Prompts:  prompts,
		Params:   p.params,
	})
	result.Outcome = outcome
	result.Trace = append(result.Trace, StateGenerated)

	var candidates []core.Candidate
	var copyText string
	if outcome.OK() {
		parsed := p.parser.Parse(outcome.Text)
		candidates = parsed.Candidates
		copyText = parsed.Copy
		result.Strategy = parsed.Strategy
		result.Raw = parsed.Texts()
		result.Trace = append(result.Trace, StateParsed)
		log.Debug().
			Str("state", string(StateParsed)).
			Str("strategy", string(parsed.Strategy)).
			Int("candidates", len(candidates)).
			Msg("response parsed")
	} else {
		result.Strategy = parser.StrategyNone
		result.Trace = append(result.Trace, StateErrored)
		log.Warn().
			Str("state", string(StateErrored)).
			Str("outcome", outcome.Kind.String()).
			Int("attempt", outcome.Attempts).
			Err(outcomeError(outcome)).
			Msg("generation failed, using fallback texts")
	}

	shaped := p.shaper.Shape(entityID, candidates)
	result.Candidates = shaped.Texts
	result.ShapeStats = shaped.Stats
	result.Trace = append(result.Trace, StateShaped)

	result.Output = core.EntityOutput{
		EntityID:    entityID,
		PrimaryText: p.shaper.ShapeCopy(entityID, copyText),
		Texts:       shaped.Strings(),
	}
	result.Trace = append(result.Trace, StateDone)
	result.Duration = time.Since(start)

	log.Info().
		Str("state", string(StateDone)).
		Str("outcome", outcome.Kind.String()).
		Int("attempt", outcome.Attempts).
		Int("ai", shaped.Stats.AI).
		Int("backfill", shaped.Stats.Backfill).
		Int("fallback", shaped.Stats.Fallback).
		Dur("duration", result.Duration).
		Msg("entity complete")

	return result
}

// Fallback builds a Done result purely from templates. The runner uses it
// when processing an entity panicked, so the batch still gets a complete record.
func (p *Pipeline) Fallback(entityID, detail string) EntityResult {
	shaped := p.shaper.Shape(entityID, nil)
	return EntityResult{
		Output: core.EntityOutput{
			EntityID:    entityID,
			PrimaryText: p.shaper.ShapeCopy(entityID, ""),
			Texts:       shaped.Strings(),
		},
		Candidates: shaped.Texts,
		Outcome:    llm.Outcome{Kind: llm.Fatal, Detail: detail},
		Strategy:   parser.StrategyNone,
		ShapeStats: shaped.Stats,
		Trace:      []State{StateStart, StateErrored, StateShaped, StateDone},
	}
}

func outcomeError(o llm.Outcome) error {
	if o.Detail == "" {
		return nil
	}
	return errors.New(o.Detail)
}
