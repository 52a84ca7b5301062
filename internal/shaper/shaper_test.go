package shaper

import (
	"altwriter/internal/core"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetLines = []string{
	"Widget Xは軽量でコンパクトなボディが特長で、通勤や旅行のバッグにもすっきり収まります。毎日の持ち歩きでも負担になりにくく、必要なときにすぐ取り出して使える手軽さが魅力です。",
	"Widget Xは充電式で繰り返し使えるため、電池交換の手間がかからず経済的です。フル充電で長時間動作するので、アウトドアや停電時の備えとしても心強い存在になります。",
	"Widget Xは手になじむ丸みのある形状で、長時間握っていても疲れにくい設計です。シンプルな操作ボタンは直感的に扱えるので、機械が苦手な方やご年配の方にも使いやすく仕上がっています。",
}

func baseForbidden() core.WordSet {
	return core.NewWordSet([]string{"画像", "写真", "送料無料", "最安", "クリック"})
}

func aiCandidates(texts ...string) []core.Candidate {
	out := make([]core.Candidate, len(texts))
	for i, t := range texts {
		out[i] = core.Candidate{Text: t, Origin: core.OriginAI}
	}
	return out
}

// requireInvariants checks every rule an output list must satisfy.
func requireInvariants(t *testing.T, policy core.Policy, forbidden core.WordSet, texts []core.Candidate) {
	t.Helper()
	require.Len(t, texts, policy.RequiredQuota)
	for i, c := range texts {
		n := core.Len(c.Text)
		assert.GreaterOrEqual(t, n, policy.TargetLenMin, "text %d too short: %q", i, c.Text)
		assert.LessOrEqual(t, n, policy.TargetLenMax, "text %d too long: %q", i, c.Text)
		assert.True(t, policy.EndsWithTerminal(c.Text), "text %d lacks terminal: %q", i, c.Text)
		if w, bad := forbidden.Find(c.Text); bad {
			t.Errorf("text %d contains forbidden word %q: %q", i, w, c.Text)
		}
		for j := i + 1; j < len(texts); j++ {
			if sim := Similarity(c.Text, texts[j].Text); sim >= policy.SimilarityThreshold {
				t.Errorf("texts %d and %d too similar (%.2f):\n%s\n%s", i, j, sim, c.Text, texts[j].Text)
			}
		}
	}
}

func TestShape_ThreeUsableLines(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	res := s.Shape("Widget X", aiCandidates(widgetLines...))

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	assert.Equal(t, 3, res.Stats.AI)
	assert.Equal(t, 17, res.Stats.Backfill+res.Stats.Fallback)

	got := res.Strings()
	for _, line := range widgetLines {
		assert.Contains(t, got, line, "usable AI lines pass through verbatim")
	}
	ai := 0
	for _, c := range res.Texts {
		if c.Origin == core.OriginAI {
			ai++
		}
	}
	assert.Equal(t, 3, ai)
	assert.Equal(t, widgetLines[0], got[0], "discovery order is kept")
}

func TestShape_TotalFailure(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	res := s.Shape("Widget X", nil)

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	for _, c := range res.Texts {
		assert.Equal(t, core.OriginFallback, c.Origin)
		assert.Contains(t, c.Text, "Widget X")
	}
	assert.Equal(t, 20, res.Stats.Fallback)
}

func TestShape_GarbageCandidates(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	res := s.Shape("Widget X", aiCandidates("", "!!!", "赤、青、緑、黄、白、黒、紫、灰、茶、金、銀", "★★★"))

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	assert.Equal(t, 0, res.Stats.AI)
	assert.Equal(t, 4, res.Stats.Discarded)
}

func TestShape_SanitizesForbiddenAndLength(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)
	long := "【送料無料】" + widgetLines[0] + "さらに写真映えする落ち着いたカラーで、デスクの上に置いておくだけでも空間がすっきり整います。"

	res := s.Shape("Widget X", aiCandidates(long))

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	assert.Equal(t, widgetLines[0], res.Texts[0].Text, "cut at the last terminal inside the window")
	assert.Equal(t, core.OriginAI, res.Texts[0].Origin)
}

func TestShape_NearDuplicatesRejected(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)
	near := strings.TrimSuffix(widgetLines[0], "。") + "ね。"

	res := s.Shape("Widget X", aiCandidates(widgetLines[0], widgetLines[0], near))

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	assert.Equal(t, 1, res.Stats.AI)
	assert.Equal(t, 2, res.Stats.Duplicates)
}

func TestShape_SurplusKeepsDiscoveryOrder(t *testing.T) {
	policy := core.DefaultPolicy()
	seed := New(policy, baseForbidden(), nil).Shape("Widget X", nil).Strings()

	small := policy
	small.RequiredQuota = 5
	s := New(small, baseForbidden(), nil)
	res := s.Shape("Widget X", aiCandidates(seed[:8]...))

	requireInvariants(t, small, s.Forbidden(), res.Texts)
	assert.Equal(t, seed[:5], res.Strings())
	for _, c := range res.Texts {
		assert.Equal(t, core.OriginAI, c.Origin)
	}
}

func TestShape_ShortCandidateIsLengthened(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	res := s.Shape("Widget X", aiCandidates("軽量で丈夫なボトルです。"))

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
	assert.True(t, strings.HasPrefix(res.Texts[0].Text, "軽量で丈夫なボトルです。"))
	assert.Equal(t, core.OriginBackfill, res.Texts[0].Origin)
}

func TestShape_Deterministic(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), []string{"在宅ワーク", "アウトドア"})

	a := s.Shape("Widget X", aiCandidates(widgetLines[:2]...))
	b := s.Shape("Widget X", aiCandidates(widgetLines[:2]...))

	assert.Equal(t, a.Strings(), b.Strings())
}

func TestShape_CustomPolicy(t *testing.T) {
	tests := []struct {
		name      string
		lo, hi    int
		quota     int
		forbidden []string
	}{
		{name: "10-20", lo: 10, hi: 20, quota: 20},
		{name: "20-20", lo: 20, hi: 20, quota: 20},
		{name: "20-30", lo: 20, hi: 30, quota: 20},
		{name: "25-35", lo: 25, hi: 35, quota: 20},
		{name: "30-40", lo: 30, hi: 40, quota: 20},
		{name: "20-40", lo: 20, hi: 40, quota: 20},
		{name: "40-40", lo: 40, hi: 40, quota: 20},
		{name: "40-70 custom forbidden", lo: 40, hi: 70, quota: 8, forbidden: []string{"魅力"}},
		{name: "80-110", lo: 80, hi: 110, quota: 20},
		{name: "20-30 max quota", lo: 20, hi: 30, quota: core.MaxQuota},
		{name: "30-40 max quota", lo: 30, hi: 40, quota: core.MaxQuota},
	}
	for _, tt := range tests {
		policy := core.DefaultPolicy()
		policy.TargetLenMin = tt.lo
		policy.TargetLenMax = tt.hi
		policy.RequiredQuota = tt.quota
		policy.ForbiddenWords = tt.forbidden
		require.NoError(t, policy.Validate(), tt.name)
		s := New(policy, baseForbidden(), nil)

		for src, cands := range map[string][]core.Candidate{
			"none":  nil,
			"lines": aiCandidates(widgetLines...),
		} {
			t.Run(tt.name+"/"+src, func(t *testing.T) {
				res := s.Shape("Widget X", cands)
				requireInvariants(t, policy, s.Forbidden(), res.Texts)
			})
		}
	}
}

func TestShape_ShortNameNarrowWindow(t *testing.T) {
	policy := core.DefaultPolicy()
	policy.TargetLenMin = 20
	policy.TargetLenMax = 20
	s := New(policy, baseForbidden(), nil)

	for _, name := range []string{"傘", "", "写真"} {
		res := s.Shape(name, nil)
		requireInvariants(t, policy, s.Forbidden(), res.Texts)
	}
}

func TestShape_LongEntityName(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)
	name := strings.Repeat("超ロングネームの業務用ステンレス製保温ボトル", 4)

	res := s.Shape(name, nil)

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
}

func TestShape_ForbiddenEntityName(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	res := s.Shape("写真立て 送料無料", nil)

	requireInvariants(t, policy, s.Forbidden(), res.Texts)
}

func TestShapeCopy(t *testing.T) {
	policy := core.DefaultPolicy()
	s := New(policy, baseForbidden(), nil)

	t.Run("in range", func(t *testing.T) {
		in := "軽くて丈夫なWidget Xで、毎日の持ち歩きがもっと快適に。通勤にも旅行にも頼れる相棒です。"
		got := s.ShapeCopy("Widget X", in)
		assert.Equal(t, in, got)
	})
	t.Run("too long", func(t *testing.T) {
		got := s.ShapeCopy("Widget X", widgetLines[1]+widgetLines[2])
		assert.LessOrEqual(t, core.Len(got), policy.CopyLenMax)
		assert.GreaterOrEqual(t, core.Len(got), policy.CopyLenMin)
	})
	t.Run("short is lengthened", func(t *testing.T) {
		got := s.ShapeCopy("Widget X", "軽くて丈夫。")
		assert.True(t, strings.HasPrefix(got, "軽くて丈夫。"))
		assert.GreaterOrEqual(t, core.Len(got), policy.CopyLenMin)
		assert.LessOrEqual(t, core.Len(got), policy.CopyLenMax)
	})
	t.Run("empty falls back", func(t *testing.T) {
		got := s.ShapeCopy("Widget X", "")
		assert.Contains(t, got, "Widget X")
		assert.GreaterOrEqual(t, core.Len(got), policy.CopyLenMin)
		assert.LessOrEqual(t, core.Len(got), policy.CopyLenMax)
	})
	t.Run("short names never repeat a sentence", func(t *testing.T) {
		for _, name := range []string{"傘", "マグ", "タオル"} {
			got := s.ShapeCopy(name, "")
			assert.GreaterOrEqual(t, core.Len(got), policy.CopyLenMin, got)
			assert.LessOrEqual(t, core.Len(got), policy.CopyLenMax, got)
			seen := map[string]bool{}
			for _, sentence := range splitSentences(got, policy) {
				assert.False(t, seen[sentence], "%s: repeated %q in %q", name, sentence, got)
				seen[sentence] = true
			}
		}
	})
	t.Run("forbidden stripped", func(t *testing.T) {
		got := s.ShapeCopy("Widget X", "送料無料でお届け、軽くて丈夫なWidget Xが毎日の持ち歩きをもっと快適にします。")
		assert.NotContains(t, got, "送料無料")
	})
	t.Run("disabled", func(t *testing.T) {
		p := policy
		p.CopyLenMax = 0
		assert.Equal(t, "", New(p, baseForbidden(), nil).ShapeCopy("Widget X", "何か。"))
	})
}
