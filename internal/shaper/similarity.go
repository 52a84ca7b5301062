package shaper

import (
	"altwriter/internal/core"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

type bigram [2]rune

// similarityKey folds width and case and keeps letters and digits only, so
// punctuation and spacing never make two strings look different.
func similarityKey(s string) []rune {
	s = strings.ToLower(width.Fold.String(s))
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}

func bigrams(key []rune) map[bigram]struct{} {
	grams := make(map[bigram]struct{}, len(key))
	if len(key) == 1 {
		grams[bigram{key[0], 0}] = struct{}{}
	}
	for i := 0; i+1 < len(key); i++ {
		grams[bigram{key[i], key[i+1]}] = struct{}{}
	}
	return grams
}

func jaccard(a, b map[bigram]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for g := range a {
		if _, ok := b[g]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Similarity is the Jaccard index of the character bigrams of a and b after
// punctuation and spacing are removed. Identical keys score 1.
func Similarity(a, b string) float64 {
	return jaccard(bigrams(similarityKey(a)), bigrams(similarityKey(b)))
}

type entry struct {
	cand  core.Candidate
	grams map[bigram]struct{}
}

// pool holds accepted strings in discovery order and rejects exact and
// near duplicates.
type pool struct {
	threshold float64
	entries   []entry
	seen      map[string]struct{}
}

func newPool(threshold float64) *pool {
	return &pool{threshold: threshold, seen: make(map[string]struct{})}
}

func (p *pool) len() int { return len(p.entries) }

// add reports false if c duplicates an accepted string.
func (p *pool) add(c core.Candidate) bool {
	key := similarityKey(c.Text)
	k := string(key)
	if _, dup := p.seen[k]; dup {
		return false
	}
	grams := bigrams(key)
	for _, e := range p.entries {
		if jaccard(grams, e.grams) >= p.threshold {
			return false
		}
	}
	p.seen[k] = struct{}{}
	p.entries = append(p.entries, entry{cand: c, grams: grams})
	return true
}

func (p *pool) candidates(limit int) []core.Candidate {
	n := len(p.entries)
	if limit >= 0 && n > limit {
		n = limit
	}
	out := make([]core.Candidate, n)
	for i := 0; i < n; i++ {
		out[i] = p.entries[i].cand
	}
	return out
}
