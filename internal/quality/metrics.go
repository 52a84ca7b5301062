package quality

import (
	"altwriter/internal/core"
	"strings"
)

// IssueKind names the rule an output broke
type IssueKind string

const (
	IssueQuota         IssueKind = "quota"
	IssueLength        IssueKind = "length"
	IssueForbidden     IssueKind = "forbidden"
	IssueTerminal      IssueKind = "terminal"
	IssueSimilarity    IssueKind = "similarity"
	IssueCopyLength    IssueKind = "copy_length"
	IssueCopyForbidden IssueKind = "copy_forbidden"
	IssueCopyIsName    IssueKind = "copy_is_name" // Warning only
)

// CopySlot marks an issue on the catch copy rather than a numbered text
const CopySlot = -1

// Issue is one rule violation
type Issue struct {
	Entity  string    `json:"product_name"`
	Slot    int       `json:"slot"` // 1-based text index, or CopySlot
	Kind    IssueKind `json:"kind"`
	Detail  string    `json:"detail"`
	Warning bool      `json:"warning,omitempty"` // Reported but does not fail the record
}

// RecordMetrics contains the check results for one entity
type RecordMetrics struct {
	Entity        string  `json:"product_name"`
	TextCount     int     `json:"text_count"`
	AvgLength     float64 `json:"avg_length"`
	MinLength     int     `json:"min_length"`
	MaxLength     int     `json:"max_length"`
	CopyLength    int     `json:"copy_length"`
	MaxSimilarity float64 `json:"max_similarity"` // Highest pairwise similarity among texts

	Issues []Issue `json:"issues,omitempty"`
	Passed bool    `json:"passed"`
}

// Report aggregates the check results of a whole output file
type Report struct {
	Records  int               `json:"records"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Warnings int               `json:"warnings"`
	ByKind   map[IssueKind]int `json:"by_kind"`
	Metrics  []RecordMetrics   `json:"metrics"`
	Grade    string            `json:"grade"` // A/B/C/D
}

// OK reports whether every record passed
func (r *Report) OK() bool { return r.Failed == 0 }

// Issues returns every issue in record order
func (r *Report) Issues() []Issue {
	var out []Issue
	for _, m := range r.Metrics {
		out = append(out, m.Issues...)
	}
	return out
}

// GradeReport assigns a letter grade based on the pass rate
func GradeReport(r *Report) string {
	if r.Records == 0 {
		return "D - POOR"
	}
	rate := float64(r.Passed) / float64(r.Records)
	switch {
	case rate == 1 && r.Warnings == 0:
		return "A - EXCELLENT"
	case rate == 1:
		return "B - GOOD"
	case rate >= 0.9:
		return "C - FAIR"
	default:
		return "D - POOR"
	}
}

// copyRepeatsName reports whether the copy is nothing but the product name
func copyRepeatsName(copyText, name string, policy core.Policy) bool {
	trimmed := strings.TrimRightFunc(strings.TrimSpace(copyText), policy.IsTerminal)
	return trimmed != "" && strings.EqualFold(trimmed, strings.TrimSpace(name))
}
