// Package shaper enforces the output policy on generated text: every entity
// leaves with exactly RequiredQuota strings that fit the length window, end
// with a terminal, carry no forbidden word and are pairwise dissimilar.
package shaper

import (
	"altwriter/internal/core"
	"altwriter/internal/logger"

	"github.com/rs/zerolog"
)

// Stats counts what happened to the candidates of one entity.
type Stats struct {
	Input      int `json:"input"`
	AI         int `json:"ai"`
	Backfill   int `json:"backfill"`
	Fallback   int `json:"fallback"`
	Discarded  int `json:"discarded"`
	Duplicates int `json:"duplicates"` // Input candidates dropped as exact or near duplicates
	Variations int `json:"variation_attempts"`
}

// Result is the shaped output of one entity.
type Result struct {
	Texts []core.Candidate
	Stats Stats
}

// Strings returns the shaped texts in order.
func (r Result) Strings() []string {
	out := make([]string, len(r.Texts))
	for i, c := range r.Texts {
		out[i] = c.Text
	}
	return out
}

// Shaper is immutable after construction and safe for concurrent use.
type Shaper struct {
	policy    core.Policy
	forbidden core.WordSet
	hints     []string
	log       zerolog.Logger
}

// New creates a Shaper. The policy's own forbidden words are always added to
// forbidden; hints are knowledge terms that variation may weave in.
func New(policy core.Policy, forbidden core.WordSet, hints []string) *Shaper {
	forbidden = forbidden.Union(core.NewWordSet(policy.ForbiddenWords))
	return &Shaper{
		policy:    policy,
		forbidden: forbidden,
		hints:     usableHints(hints, forbidden),
		log:       logger.For("shaper"),
	}
}

// Forbidden returns the effective forbidden-word set.
func (s *Shaper) Forbidden() core.WordSet { return s.forbidden }

// Shape turns raw candidates into exactly RequiredQuota policy-compliant
// strings. It never fails: shortfalls are filled by lengthening short
// candidates, then by variation of accepted ones, then by templates built
// from entityID.
func (s *Shaper) Shape(entityID string, candidates []core.Candidate) Result {
	quota := s.policy.RequiredQuota
	lo, hi := s.policy.TargetLenMin, s.policy.TargetLenMax
	accepted := newPool(s.policy.SimilarityThreshold)
	stats := Stats{Input: len(candidates)}

	accept := func(text string, origin core.Origin) bool {
		if !s.valid(text, lo, hi) {
			return false
		}
		if !accepted.add(core.Candidate{Text: text, Origin: origin}) {
			return false
		}
		switch origin {
		case core.OriginAI:
			stats.AI++
		case core.OriginBackfill:
			stats.Backfill++
		case core.OriginFallback:
			stats.Fallback++
		}
		return true
	}

	var short []string
	for _, c := range candidates {
		text, ok := sanitize(c.Text, s.policy, s.forbidden)
		if !ok || text == "" {
			stats.Discarded++
			continue
		}
		text = Clamp(text, lo, hi, s.policy, false)
		if pathological(text, s.policy) {
			stats.Discarded++
			continue
		}
		if core.Len(text) < lo {
			short = append(short, text)
			continue
		}
		origin := c.Origin
		if origin == "" {
			origin = core.OriginAI
		}
		if !accept(text, origin) && s.valid(text, lo, hi) {
			stats.Duplicates++
		}
	}

	if accepted.len() < quota {
		s.lengthen(short, accept, accepted, quota)
	}
	if accepted.len() < quota {
		stats.Variations = s.vary(accepted, accept, quota)
	}
	if accepted.len() < quota {
		s.fallbacks(entityID, quota-accepted.len(), func(text string) bool {
			return accept(text, core.OriginFallback)
		})
	}

	out := accepted.candidates(quota)
	if len(out) < quota {
		// Not reachable for a policy that passes Validate; logged so a policy
		// that starves the templates is visible.
		s.log.Error().Str("entity", entityID).Int("have", len(out)).Int("quota", quota).Msg("quota not met")
	}
	s.log.Debug().
		Str("entity", entityID).
		Int("ai", stats.AI).
		Int("backfill", stats.Backfill).
		Int("fallback", stats.Fallback).
		Int("discarded", stats.Discarded).
		Int("duplicates", stats.Duplicates).
		Msg("shaped")
	return Result{Texts: out, Stats: stats}
}

// lengthen grows complete-but-short sentences with qualifiers.
func (s *Shaper) lengthen(short []string, accept func(string, core.Origin) bool, accepted *pool, quota int) {
	quals := s.qualifierPool()
	for i, text := range short {
		if accepted.len() >= quota {
			return
		}
		for k := 0; k < len(quals); k++ {
			grown, ok := s.extend(text, quals, i+k)
			if !ok {
				break
			}
			if accept(grown, core.OriginBackfill) {
				break
			}
		}
	}
}

// vary derives new strings from the accepted ones. It returns the number of
// variation attempts, bounded by VariationCeiling.
func (s *Shaper) vary(accepted *pool, accept func(string, core.Origin) bool, quota int) int {
	bases := accepted.candidates(-1)
	if len(bases) == 0 {
		return 0
	}
	quals := s.qualifierPool()
	if len(quals) == 0 {
		return 0
	}

	stems := make([][]string, len(bases))
	for i, b := range bases {
		stems[i] = s.stems(b.Text)
	}

	attempts := 0
	rounds := len(quals) * 2
	for k := 0; k < rounds; k++ {
		for bi := range bases {
			if accepted.len() >= quota || attempts >= s.policy.VariationCeiling {
				return attempts
			}
			if len(stems[bi]) == 0 {
				continue
			}
			attempts++
			stem := stems[bi][(k+bi)%len(stems[bi])]
			if k%2 == 1 {
				stem = s.swapEnding(stem)
			}
			variant, ok := s.extend(stem, quals, k*3+bi)
			if !ok {
				continue
			}
			variant, ok = sanitize(variant, s.policy, s.forbidden)
			if !ok {
				continue
			}
			accept(Clamp(variant, s.policy.TargetLenMin, s.policy.TargetLenMax, s.policy, true), core.OriginBackfill)
		}
	}
	return attempts
}

// valid checks every per-string rule.
func (s *Shaper) valid(text string, lo, hi int) bool {
	n := core.Len(text)
	if n < lo || n > hi || !s.policy.EndsWithTerminal(text) {
		return false
	}
	_, bad := s.forbidden.Find(text)
	return !bad
}

// ShapeCopy fits the primary copy into the copy window, falling back to a
// template built from entityID. It returns "" when the copy window is unset.
func (s *Shaper) ShapeCopy(entityID, text string) string {
	lo, hi := s.policy.CopyLenMin, s.policy.CopyLenMax
	if hi <= 0 {
		return ""
	}
	if clean, ok := sanitize(text, s.policy, s.forbidden); ok && clean != "" {
		clean = Clamp(clean, lo, hi, s.policy, true)
		if s.valid(clean, lo, hi) && !pathological(clean, s.policy) {
			return clean
		}
		if core.Len(clean) < lo {
			if grown, ok := s.assemble([]string{trimTerminal(clean, s.policy)}, copyTails, lo, hi); ok {
				return grown
			}
		}
	}
	return s.fallbackCopy(entityID)
}

func trimTerminal(text string, policy core.Policy) string {
	runes := []rune(text)
	for len(runes) > 0 && policy.IsTerminal(runes[len(runes)-1]) {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
