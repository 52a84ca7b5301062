package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Len is the single length function used for every window in the policy.
// It counts Unicode code points, so full-width and half-width characters weigh the same.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Category classifies a knowledge fragment by the role its terms play in the prompt.
type Category string

const (
	CategoryLexical   Category = "lexical"   // Product vocabulary clusters
	CategoryMarket    Category = "market"    // Marketplace / trend vocabulary
	CategorySemantic  Category = "semantic"  // Structural concepts (features, scenes, targets, benefits)
	CategoryPersona   Category = "persona"   // Tone and persona hints
	CategoryForbidden Category = "forbidden" // Words that must never appear in output
	CategoryTemplate  Category = "template"  // Phrasing / structure hints
	CategoryUnknown   Category = "unknown"
)

// Categories lists every category in digest rendering order.
var Categories = []Category{
	CategoryLexical,
	CategoryMarket,
	CategorySemantic,
	CategoryTemplate,
	CategoryPersona,
	CategoryForbidden,
	CategoryUnknown,
}

// Fragment is the terms extracted from one knowledge file.
type Fragment struct {
	SourcePath string   `json:"source_path"`
	Category   Category `json:"category"`
	Terms      []string `json:"terms"` // Ordered, deduplicated
}

// Digest is the prompt-ready knowledge summary built once per run.
// It is never mutated after construction and is safe for concurrent readers.
type Digest struct {
	Terms     map[Category][]string `json:"terms"`
	Summary   string                `json:"summary_text"`
	Forbidden WordSet               `json:"forbidden_words"`
}

// TermsFor returns a copy of the capped term list for a category.
func (d *Digest) TermsFor(c Category) []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.Terms[c]...)
}

// WordSet is an immutable, order-independent set of forbidden substrings.
// Words are kept longest first so that stripping removes "購入はこちら" before "こちら".
type WordSet struct {
	words []string
}

// NewWordSet builds a set from any number of word lists, ignoring blanks.
func NewWordSet(lists ...[]string) WordSet {
	seen := make(map[string]struct{})
	var words []string
	for _, list := range lists {
		for _, w := range list {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		li, lj := Len(words[i]), Len(words[j])
		if li != lj {
			return li > lj
		}
		return words[i] < words[j]
	})
	return WordSet{words: words}
}

// Words returns the words, longest first.
func (w WordSet) Words() []string {
	return append([]string(nil), w.words...)
}

// Len returns the number of words in the set.
func (w WordSet) Len() int {
	return len(w.words)
}

// Union returns a new set holding the words of both sets.
func (w WordSet) Union(other WordSet) WordSet {
	return NewWordSet(w.words, other.words)
}

// Has reports whether word is a member of the set.
func (w WordSet) Has(word string) bool {
	for _, x := range w.words {
		if x == word {
			return true
		}
	}
	return false
}

// Find returns the first forbidden word contained in s, if any.
func (w WordSet) Find(s string) (string, bool) {
	for _, x := range w.words {
		if strings.Contains(s, x) {
			return x, true
		}
	}
	return "", false
}

// MarshalJSON renders the set as a sorted list.
func (w WordSet) MarshalJSON() ([]byte, error) {
	sorted := w.Words()
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", x)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// Policy holds the static constraints every output string must satisfy.
type Policy struct {
	TargetLenMin        int      `json:"target_len_min"`
	TargetLenMax        int      `json:"target_len_max"`
	GenerationLenMin    int      `json:"generation_len_min"` // What the backend is asked for; wider than the target
	GenerationLenMax    int      `json:"generation_len_max"`
	CopyLenMin          int      `json:"copy_len_min"`
	CopyLenMax          int      `json:"copy_len_max"`
	RequiredQuota       int      `json:"required_quota"`
	ForbiddenWords      []string `json:"forbidden_words"` // Added on top of the base blacklist
	SentenceTerminals   string   `json:"sentence_terminals"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	DiscardBelow        int      `json:"discard_below"`     // Absolute minimum length before a candidate is dropped
	VariationCeiling    int      `json:"variation_ceiling"` // Max variation attempts during backfill
}

// MaxQuota bounds RequiredQuota.
const MaxQuota = 100

// MinSimilarityThreshold bounds SimilarityThreshold from below. Stricter
// thresholds reject the backfill templates faster than the quota fills.
const MinSimilarityThreshold = 0.7

// DefaultPolicy returns the Rakuten ALT policy: 20 strings of 80-110 characters.
func DefaultPolicy() Policy {
	return Policy{
		TargetLenMin:        80,
		TargetLenMax:        110,
		GenerationLenMin:    100,
		GenerationLenMax:    130,
		CopyLenMin:          40,
		CopyLenMax:          60,
		RequiredQuota:       20,
		SentenceTerminals:   "。！？!?",
		SimilarityThreshold: 0.90,
		DiscardBelow:        10,
		VariationCeiling:    200,
	}
}

// Validate reports every inconsistency in the policy at once.
func (p Policy) Validate() error {
	var errs []error
	if p.RequiredQuota <= 0 || p.RequiredQuota > MaxQuota {
		errs = append(errs, fmt.Errorf("required_quota must be between 1 and %d, got %d", MaxQuota, p.RequiredQuota))
	}
	if p.TargetLenMin <= 0 || p.TargetLenMax < p.TargetLenMin {
		errs = append(errs, fmt.Errorf("target length window %d..%d is invalid", p.TargetLenMin, p.TargetLenMax))
	}
	if p.TargetLenMax < 20 {
		errs = append(errs, fmt.Errorf("target_len_max %d is too small to hold a sentence", p.TargetLenMax))
	}
	if p.GenerationLenMax < p.GenerationLenMin {
		errs = append(errs, fmt.Errorf("generation length window %d..%d is invalid", p.GenerationLenMin, p.GenerationLenMax))
	}
	if p.CopyLenMax > 0 && p.CopyLenMax < p.CopyLenMin {
		errs = append(errs, fmt.Errorf("copy length window %d..%d is invalid", p.CopyLenMin, p.CopyLenMax))
	}
	if p.SentenceTerminals == "" {
		errs = append(errs, errors.New("sentence_terminals must not be empty"))
	}
	if p.SimilarityThreshold < MinSimilarityThreshold || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity_threshold must be in [%.2f, 1], got %.2f", MinSimilarityThreshold, p.SimilarityThreshold))
	}
	if p.DiscardBelow < 0 || p.DiscardBelow > p.TargetLenMin {
		errs = append(errs, fmt.Errorf("discard_below %d must be between 0 and target_len_min", p.DiscardBelow))
	}
	return errors.Join(errs...)
}

// IsTerminal reports whether r is a configured sentence terminal.
func (p Policy) IsTerminal(r rune) bool {
	return strings.ContainsRune(p.SentenceTerminals, r)
}

// EndsWithTerminal reports whether s ends with a configured sentence terminal.
func (p Policy) EndsWithTerminal(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && p.IsTerminal(r)
}

// Terminal is the terminal appended when a string has to be closed.
func (p Policy) Terminal() string {
	r, _ := utf8.DecodeRuneInString(p.SentenceTerminals)
	if r == utf8.RuneError {
		return "。"
	}
	return string(r)
}

// Origin records where a shaped string came from.
type Origin string

const (
	OriginAI       Origin = "ai"
	OriginBackfill Origin = "backfill"
	OriginFallback Origin = "fallback"
)

// Candidate is a provisional output string.
type Candidate struct {
	Text   string `json:"text"`
	Origin Origin `json:"origin"`
}

// EntityOutput is the finished record for a single product. Texts always holds
// exactly Policy.RequiredQuota strings.
type EntityOutput struct {
	EntityID    string   `json:"product_name"`
	PrimaryText string   `json:"copy,omitempty"`
	Texts       []string `json:"alts"`
}

// ResponseMode is the output shape the backend is asked for.
type ResponseMode string

const (
	ModeJSON ResponseMode = "json"
	ModeText ResponseMode = "text"
)

// ParseResponseMode maps a config string to a mode, defaulting to JSON.
func ParseResponseMode(s string) ResponseMode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeText)) {
		return ModeText
	}
	return ModeJSON
}
