package quality

import (
	"altwriter/internal/core"
	"altwriter/internal/shaper"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forbidden() core.WordSet {
	return core.NewWordSet([]string{"画像", "送料無料", "最安"})
}

// validOutput builds a compliant record with the shaper's own fallbacks
func validOutput(t *testing.T, policy core.Policy, name string) core.EntityOutput {
	t.Helper()
	s := shaper.New(policy, forbidden(), nil)
	res := s.Shape(name, nil)
	require.Len(t, res.Texts, policy.RequiredQuota)
	return core.EntityOutput{EntityID: name, PrimaryText: s.ShapeCopy(name, ""), Texts: res.Strings()}
}

func kinds(issues []Issue) []IssueKind {
	var out []IssueKind
	for _, i := range issues {
		out = append(out, i.Kind)
	}
	return out
}

func TestValidate_CleanOutput(t *testing.T) {
	policy := core.DefaultPolicy()
	outputs := []core.EntityOutput{validOutput(t, policy, "Widget X"), validOutput(t, policy, "Widget Y")}

	report := Validate(outputs, policy, forbidden())

	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Passed)
	assert.Empty(t, report.Issues())
	assert.Equal(t, "A - EXCELLENT", report.Grade)
	m := report.Metrics[0]
	assert.Equal(t, 20, m.TextCount)
	assert.GreaterOrEqual(t, m.MinLength, policy.TargetLenMin)
	assert.LessOrEqual(t, m.MaxLength, policy.TargetLenMax)
	assert.Less(t, m.MaxSimilarity, policy.SimilarityThreshold)
}

func TestValidate_Violations(t *testing.T) {
	policy := core.DefaultPolicy()

	tests := []struct {
		name     string
		mutate   func(o *core.EntityOutput)
		expected IssueKind
		slot     int
	}{
		{
			name:     "missing texts",
			mutate:   func(o *core.EntityOutput) { o.Texts = o.Texts[:19] },
			expected: IssueQuota,
			slot:     0,
		},
		{
			name:     "too short",
			mutate:   func(o *core.EntityOutput) { o.Texts[2] = "短すぎる説明です。" },
			expected: IssueLength,
			slot:     3,
		},
		{
			name: "forbidden word",
			mutate: func(o *core.EntityOutput) {
				r := []rune(o.Texts[0])
				o.Texts[0] = "送料無料" + string(r[4:])
			},
			expected: IssueForbidden,
			slot:     1,
		},
		{
			name: "no terminal",
			mutate: func(o *core.EntityOutput) {
				r := []rune(o.Texts[4])
				o.Texts[4] = string(r[:len(r)-1]) + "よ"
			},
			expected: IssueTerminal,
			slot:     5,
		},
		{
			name:     "duplicate",
			mutate:   func(o *core.EntityOutput) { o.Texts[7] = o.Texts[6] },
			expected: IssueSimilarity,
			slot:     7,
		},
		{
			name:     "copy too short",
			mutate:   func(o *core.EntityOutput) { o.PrimaryText = "短い。" },
			expected: IssueCopyLength,
			slot:     CopySlot,
		},
		{
			name:     "copy forbidden",
			mutate:   func(o *core.EntityOutput) { o.PrimaryText = "最安" + o.PrimaryText },
			expected: IssueCopyForbidden,
			slot:     CopySlot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := validOutput(t, policy, "Widget X")
			tt.mutate(&out)

			report := Validate([]core.EntityOutput{out}, policy, forbidden())

			assert.False(t, report.OK())
			assert.Equal(t, 1, report.Failed)
			issues := report.Issues()
			require.NotEmpty(t, issues)
			assert.Contains(t, kinds(issues), tt.expected)
			for _, issue := range issues {
				if issue.Kind == tt.expected {
					assert.Equal(t, tt.slot, issue.Slot)
					assert.Equal(t, "Widget X", issue.Entity)
				}
			}
			assert.Equal(t, "D - POOR", report.Grade)
		})
	}
}

func TestValidate_CopyRepeatsNameIsWarning(t *testing.T) {
	policy := core.DefaultPolicy()
	policy.CopyLenMin = 5
	name := "ステンレス製真空断熱タンブラー"
	out := validOutput(t, policy, name)
	out.PrimaryText = name + "。"

	report := Validate([]core.EntityOutput{out}, policy, forbidden())

	assert.True(t, report.OK())
	assert.Equal(t, 1, report.Warnings)
	assert.Equal(t, []IssueKind{IssueCopyIsName}, kinds(report.Issues()))
	assert.Equal(t, "B - GOOD", report.Grade)
}

func TestValidate_PolicyForbiddenWords(t *testing.T) {
	policy := core.DefaultPolicy()
	out := validOutput(t, policy, "Widget X")
	policy.ForbiddenWords = []string{"Widget"}

	report := Validate([]core.EntityOutput{out}, policy, forbidden())

	assert.Equal(t, 20, report.ByKind[IssueForbidden])
}

func TestValidate_CopyDisabled(t *testing.T) {
	policy := core.DefaultPolicy()
	out := validOutput(t, policy, "Widget X")
	out.PrimaryText = ""
	policy.CopyLenMax = 0

	report := Validate([]core.EntityOutput{out}, policy, forbidden())
	assert.True(t, report.OK())
}

func TestGradeReport(t *testing.T) {
	assert.Equal(t, "D - POOR", GradeReport(&Report{}))
	assert.Equal(t, "C - FAIR", GradeReport(&Report{Records: 10, Passed: 9, Failed: 1}))
}

func TestPrintReport(t *testing.T) {
	policy := core.DefaultPolicy()
	out := validOutput(t, policy, "Widget X")
	out.Texts[1] = "短い。"

	var buf bytes.Buffer
	PrintReport(&buf, Validate([]core.EntityOutput{out}, policy, forbidden()))

	text := buf.String()
	assert.Contains(t, text, "OUTPUT QUALITY REPORT (1 records)")
	assert.Contains(t, text, "length: 1")
	assert.Contains(t, text, "[error] Widget X ALT_2: length 3 outside 80..110")
}
