package pipeline

import (
	"altwriter/internal/core"
	"altwriter/internal/knowledge"
	"altwriter/internal/llm"
	"altwriter/internal/parser"
	"altwriter/internal/shaper"
	"fmt"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	digest  *core.Digest
	policy  core.Policy
	params  llm.ModelParams
	retry   llm.RetryPolicy
	backend llm.Backend
}

// NewBuilder creates a new pipeline builder with default settings
func NewBuilder() *Builder {
	return &Builder{
		policy: core.DefaultPolicy(),
		params: llm.ModelParams{
			MaxOutputTokens: llm.DefaultMaxOutputTokens,
			Temperature:     llm.DefaultTemperature,
			Mode:            core.ModeJSON,
		},
		retry: llm.DefaultRetryPolicy(),
	}
}

// WithDigest sets the knowledge digest shared by every entity
func (b *Builder) WithDigest(digest *core.Digest) *Builder {
	b.digest = digest
	return b
}

// WithPolicy sets the output policy
func (b *Builder) WithPolicy(policy core.Policy) *Builder {
	b.policy = policy
	return b
}

// WithModelParams sets the generation parameters
func (b *Builder) WithModelParams(params llm.ModelParams) *Builder {
	b.params = params
	return b
}

// WithRetryPolicy sets the backoff policy of the generation client
func (b *Builder) WithRetryPolicy(retry llm.RetryPolicy) *Builder {
	b.retry = retry
	return b
}

// WithBackend sets the generation backend
func (b *Builder) WithBackend(backend llm.Backend) *Builder {
	b.backend = backend
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.backend == nil {
		return nil, fmt.Errorf("generation backend is required")
	}
	if err := b.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	digest := b.digest
	if digest == nil {
		// No knowledge loaded: defaults only
		digest = knowledge.Build(nil, b.policy, knowledge.DefaultOptions())
	}

	client := llm.NewClient(b.backend, b.retry)
	hints := append(digest.TermsFor(core.CategoryLexical), digest.TermsFor(core.CategorySemantic)...)
	textShaper := shaper.New(b.policy, digest.Forbidden, hints)

	return NewPipeline(digest, b.policy, b.params, client, parser.NewParser(), textShaper), nil
}
