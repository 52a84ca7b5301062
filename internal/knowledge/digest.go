package knowledge

import (
	"altwriter/internal/core"
	"strings"
)

// BaseForbidden is the static blacklist: image/media description words,
// promotional or meta words, and superlative or competitive claims.
var BaseForbidden = []string{
	// image / media description
	"画像", "写真", "見た目", "上の画像", "下の写真", "イメージ図", "写っている", "映っている",
	"スクリーンショット", "スクショ",
	// promotional / meta
	"当店", "当社", "レビュー", "ランキング", "クリック", "こちら", "コチラ", "リンク",
	"購入はこちら", "返金保証", "送料無料", "クーポン",
	// superlative / competitive
	"最安", "No.1", "ナンバーワン", "売上No1", "業界最高", "競合", "競合優位性", "他社より", "圧倒的",
}

// DefaultTemplates are the structural hints used when no template fragment exists.
var DefaultTemplates = []string{
	"特徴→用途→利便性",
	"対象→特徴→ベネフィット",
	"素材→機能→快適性",
	"利用シーン→特徴→満足感",
	"デザイン→使用感→耐久性",
	"性能→操作性→利便性",
	"価格→機能→満足度",
	"構造→快適性→安心感",
	"仕様→携帯性→快適性",
	"環境→素材→使いやすさ",
}

// DefaultSummary is used when no fragment contributes any term.
const DefaultSummary = "知見: 商品名・対応機種・スペック・機能・用途・対象・ベネフィットを自然に織り込む。"

// categoryLabels are the clause labels rendered into the summary, in order.
var categoryLabels = []struct {
	category core.Category
	label    string
}{
	{core.CategoryLexical, "語彙"},
	{core.CategoryMarket, "市場語"},
	{core.CategorySemantic, "構造"},
	{core.CategoryTemplate, "骨子"},
	{core.CategoryPersona, "トーン"},
	{core.CategoryUnknown, "参考"},
}

// Options bounds the digest size.
type Options struct {
	Caps          map[core.Category]int
	DefaultCap    int
	SummaryBudget int // Max summary length in characters
}

// DefaultOptions mirrors the caps the generation scripts settled on.
func DefaultOptions() Options {
	return Options{
		Caps: map[core.Category]int{
			core.CategoryLexical:  15,
			core.CategoryMarket:   15,
			core.CategorySemantic: 10,
			core.CategoryPersona:  6,
			core.CategoryTemplate: 4,
			core.CategoryUnknown:  10,
		},
		DefaultCap:    15,
		SummaryBudget: 500,
	}
}

func (o Options) capFor(c core.Category) int {
	if n, ok := o.Caps[c]; ok && n > 0 {
		return n
	}
	if o.DefaultCap > 0 {
		return o.DefaultCap
	}
	return 15
}

// Build groups fragments by category and renders the digest. It is a pure
// function of its inputs: the same fragments and policy give the same digest.
func Build(fragments []core.Fragment, policy core.Policy, opts Options) *core.Digest {
	var forbiddenTerms []string
	for _, f := range fragments {
		if f.Category == core.CategoryForbidden {
			forbiddenTerms = append(forbiddenTerms, f.Terms...)
		}
	}
	forbidden := core.NewWordSet(BaseForbidden, policy.ForbiddenWords, forbiddenTerms)

	terms := make(map[core.Category][]string)
	seen := make(map[core.Category]map[string]struct{})
	for _, f := range fragments {
		if f.Category == core.CategoryForbidden {
			continue
		}
		limit := opts.capFor(f.Category)
		if seen[f.Category] == nil {
			seen[f.Category] = make(map[string]struct{})
		}
		for _, t := range f.Terms {
			if len(terms[f.Category]) >= limit {
				break
			}
			if _, dup := seen[f.Category][t]; dup {
				continue
			}
			if _, bad := forbidden.Find(t); bad {
				continue
			}
			seen[f.Category][t] = struct{}{}
			terms[f.Category] = append(terms[f.Category], t)
		}
	}
	if len(forbiddenTerms) > 0 {
		terms[core.CategoryForbidden] = forbidden.Words()
	}

	hasKnowledge := false
	for _, c := range categoryLabels {
		if len(terms[c.category]) > 0 {
			hasKnowledge = true
			break
		}
	}
	if len(terms[core.CategoryTemplate]) == 0 {
		n := opts.capFor(core.CategoryTemplate)
		if n > len(DefaultTemplates) {
			n = len(DefaultTemplates)
		}
		terms[core.CategoryTemplate] = append([]string(nil), DefaultTemplates[:n]...)
	}

	summary := DefaultSummary
	if hasKnowledge {
		summary = renderSummary(terms)
	}

	return &core.Digest{
		Terms:     terms,
		Summary:   truncateSummary(summary, opts.SummaryBudget),
		Forbidden: forbidden,
	}
}

func renderSummary(terms map[core.Category][]string) string {
	parts := make([]string, 0, len(categoryLabels))
	for _, c := range categoryLabels {
		list := terms[c.category]
		if len(list) == 0 {
			continue
		}
		parts = append(parts, c.label+": "+strings.Join(list, "、"))
	}
	return "知見: " + strings.Join(parts, " / ") + "。"
}

// truncateSummary cuts s to budget characters, preferring the last term
// separator, and marks the cut with an ellipsis.
func truncateSummary(s string, budget int) string {
	if budget <= 0 || core.Len(s) <= budget {
		return s
	}
	runes := []rune(s)
	cut := runes[:budget-1]
	for i := len(cut) - 1; i > len(cut)/2; i-- {
		if cut[i] == '、' || cut[i] == '/' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRight(string(cut), " /、") + "…"
}
