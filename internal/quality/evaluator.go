// Package quality re-checks finished outputs against the output policy.
package quality

import (
	"altwriter/internal/core"
	"altwriter/internal/shaper"
	"fmt"
	"io"
	"strings"
)

// Evaluator checks outputs against a policy and forbidden-word set
type Evaluator struct {
	policy    core.Policy
	forbidden core.WordSet
}

// NewEvaluator creates an evaluator. The policy's own forbidden words are
// always checked in addition to forbidden.
func NewEvaluator(policy core.Policy, forbidden core.WordSet) *Evaluator {
	return &Evaluator{
		policy:    policy,
		forbidden: forbidden.Union(core.NewWordSet(policy.ForbiddenWords)),
	}
}

// Validate checks every output and returns the aggregate report
func Validate(outputs []core.EntityOutput, policy core.Policy, forbidden core.WordSet) *Report {
	return NewEvaluator(policy, forbidden).Evaluate(outputs)
}

// Evaluate performs every check on every output
func (e *Evaluator) Evaluate(outputs []core.EntityOutput) *Report {
	report := &Report{
		Records: len(outputs),
		ByKind:  make(map[IssueKind]int),
	}
	for _, out := range outputs {
		m := e.EvaluateRecord(out)
		for _, issue := range m.Issues {
			report.ByKind[issue.Kind]++
			if issue.Warning {
				report.Warnings++
			}
		}
		if m.Passed {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Metrics = append(report.Metrics, m)
	}
	report.Grade = GradeReport(report)
	return report
}

// EvaluateRecord checks one output
func (e *Evaluator) EvaluateRecord(out core.EntityOutput) RecordMetrics {
	p := e.policy
	m := RecordMetrics{Entity: out.EntityID, TextCount: len(out.Texts)}
	add := func(slot int, kind IssueKind, warning bool, format string, args ...any) {
		m.Issues = append(m.Issues, Issue{
			Entity:  out.EntityID,
			Slot:    slot,
			Kind:    kind,
			Detail:  fmt.Sprintf(format, args...),
			Warning: warning,
		})
	}

	if len(out.Texts) != p.RequiredQuota {
		add(0, IssueQuota, false, "expected %d texts, got %d", p.RequiredQuota, len(out.Texts))
	}

	total := 0
	for i, text := range out.Texts {
		slot := i + 1
		n := core.Len(text)
		total += n
		if i == 0 || n < m.MinLength {
			m.MinLength = n
		}
		if n > m.MaxLength {
			m.MaxLength = n
		}
		if n < p.TargetLenMin || n > p.TargetLenMax {
			add(slot, IssueLength, false, "length %d outside %d..%d", n, p.TargetLenMin, p.TargetLenMax)
		}
		if w, bad := e.forbidden.Find(text); bad {
			add(slot, IssueForbidden, false, "contains %q", w)
		}
		if !p.EndsWithTerminal(text) {
			add(slot, IssueTerminal, false, "does not end with one of %q", p.SentenceTerminals)
		}
		for j := i + 1; j < len(out.Texts); j++ {
			sim := shaper.Similarity(text, out.Texts[j])
			if sim > m.MaxSimilarity {
				m.MaxSimilarity = sim
			}
			if sim >= p.SimilarityThreshold {
				add(slot, IssueSimilarity, false, "%.2f similar to text %d", sim, j+1)
			}
		}
	}
	if len(out.Texts) > 0 {
		m.AvgLength = float64(total) / float64(len(out.Texts))
	}

	if p.CopyLenMax > 0 {
		m.CopyLength = core.Len(out.PrimaryText)
		if m.CopyLength < p.CopyLenMin || m.CopyLength > p.CopyLenMax {
			add(CopySlot, IssueCopyLength, false, "copy length %d outside %d..%d", m.CopyLength, p.CopyLenMin, p.CopyLenMax)
		}
		if w, bad := e.forbidden.Find(out.PrimaryText); bad {
			add(CopySlot, IssueCopyForbidden, false, "copy contains %q", w)
		}
		if copyRepeatsName(out.PrimaryText, out.EntityID, p) {
			add(CopySlot, IssueCopyIsName, true, "copy only repeats the product name")
		}
	}

	m.Passed = true
	for _, issue := range m.Issues {
		if !issue.Warning {
			m.Passed = false
			break
		}
	}
	return m
}

// PrintReport writes a formatted report
func PrintReport(w io.Writer, report *Report) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "OUTPUT QUALITY REPORT (%d records)\n", report.Records)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Grade: %s\n", report.Grade)
	fmt.Fprintf(w, "Passed: %d  Failed: %d  Warnings: %d\n", report.Passed, report.Failed, report.Warnings)

	kinds := []IssueKind{IssueQuota, IssueLength, IssueForbidden, IssueTerminal, IssueSimilarity, IssueCopyLength, IssueCopyForbidden, IssueCopyIsName}
	for _, k := range kinds {
		if n := report.ByKind[k]; n > 0 {
			fmt.Fprintf(w, "  - %s: %d\n", k, n)
		}
	}

	issues := report.Issues()
	if len(issues) == 0 {
		fmt.Fprintln(w, "\nNo issues detected")
	} else {
		fmt.Fprintln(w, "\nISSUES:")
		for _, issue := range issues {
			slot := fmt.Sprintf("ALT_%d", issue.Slot)
			switch issue.Slot {
			case CopySlot:
				slot = "copy"
			case 0:
				slot = "record"
			}
			level := "error"
			if issue.Warning {
				level = "warn"
			}
			fmt.Fprintf(w, "  [%s] %s %s: %s\n", level, issue.Entity, slot, issue.Detail)
		}
	}
	fmt.Fprintln(w, rule)
}
