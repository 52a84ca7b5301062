package shaper

import (
	"altwriter/internal/core"
	"fmt"
	"strings"
)

// Fallback sentences are built from the product name alone. Each template
// is a sentence without its terminal.
var (
	fallbackOpeners = []string{
		"%sは、日々の暮らしを心地よく整えたい方のために選びたいアイテムです",
		"%sを取り入れることで、いつもの毎日に小さなゆとりが生まれます",
		"%sは、使う場面を選ばない扱いやすさが魅力の一品です",
		"%sなら、はじめての方でも迷わず使い始められます",
		"%sは、細部までていねいに仕上げられた安心感のあるつくりです",
		"%sがあれば、身の回りの時間をもっと快適に過ごせます",
	}
	fallbackBodies = []string{
		"素材やつくりにこだわり、長く使い続けられる品質を目指しています",
		"コンパクトにまとまる形で、置き場所や持ち運びにも困りません",
		"お手入れがしやすく、清潔な状態を保ちやすいのもうれしいポイントです",
		"落ち着いた雰囲気のデザインは、さまざまな空間や場面になじみます",
		"ご自宅用はもちろん、家族や友人への贈り物としても喜ばれます",
		"毎日使うものだからこそ、手に取りやすさと使い心地を大切にしました",
		"季節を問わず活躍するので、一年を通して出番の多いアイテムになります",
		"忙しい朝や限られた時間の中でも、さっと準備できる手軽さがあります",
	}
	fallbackClosers = []string{
		"ぜひ普段の生活に取り入れてみてください",
		"使うほどに良さを実感できる仕上がりです",
		"長く寄り添ってくれる定番として選んでみてはいかがでしょうか",
		"一つひとつ丁寧に確かめた品質で安心してお使いいただけます",
		"毎日の小さな満足を積み重ねたい方に向いています",
	}

	// Compact fragments carry no punctuation so a string can be cut at any
	// rune. compactLeads and compactMiddles must have the same length.
	compactLeads = []string{
		"扱いやすい形で",
		"静かな色合いで",
		"軽やかな手触りで",
		"丈夫なつくりで",
		"すっきりした形で",
		"手入れが楽なので",
		"場所を選ばずに",
		"季節を問わずに",
		"ほどよい重さで",
		"やさしい質感で",
		"細部まで丁寧で",
		"収まりのよい形で",
	}
	compactMiddles = []string{
		"毎日の身支度や家事をさっと整えます",
		"通勤や旅行のバッグにもすんなり収まります",
		"ご家族みんなで気兼ねなく使い回せます",
		"贈り物として選んでも喜ばれる品です",
		"初めて使う方でも迷わず扱えます",
		"長く愛用できる確かな品質に仕上げました",
		"狭いお部屋にもなじんで置き場所に困りません",
		"忙しい朝でも準備にかかる時間を減らせます",
		"アウトドアや屋外の作業でも頼りになります",
		"机の上やキッチンに出しておいても絵になります",
		"使うたびに心地よさを感じられる仕上がりです",
		"日々のちょっとした不便をやわらげてくれます",
	}
	compactTails = []string{
		"お手入れも簡単で清潔に保てるのがうれしいところです",
		"シンプルなので合わせる物を選ばず使えます",
		"ひとつ持っておくと何かと重宝する定番です",
		"細かな使い勝手まで考えて形を決めています",
		"自分用にも来客用にも用意しておきたくなります",
		"気軽に持ち出せるので出番がぐんと増えます",
		"素材選びから見直して耐久性を高めています",
		"手に取るたびに小さな満足を届けてくれます",
		"暮らしのリズムに合わせて柔軟に使い分けられます",
		"少ない手間で見栄えよく整うのもうれしい点です",
		"家でも外でも活躍する頼もしい存在になります",
		"落ち着いた佇まいで長く飽きずに使えます",
	}

	copyTemplates = []string{
		"%sで、いつもの毎日をもっと心地よく",
		"%sが届ける、暮らしに寄り添うやさしい使い心地",
		"毎日に寄り添う%s、手に取りやすさと品質を両立",
	}
	copyTails = []string{
		"長く使える確かな品質をお届けします",
		"使うたびに実感できる心地よさを",
		"はじめての方にも選びやすい定番です",
	}
)

const defaultName = "この商品"

// compactLen is the preferred length of compact strings. Shorter strings
// share less with each other.
const compactLen = 30

// safeName prepares the product name for embedding: sanitized, without
// terminals, and at most limit runes.
func (s *Shaper) safeName(entityID string, limit int) string {
	name, ok := sanitize(entityID, s.policy, s.forbidden)
	if !ok {
		return defaultName
	}
	name = strings.Map(func(r rune) rune {
		if s.policy.IsTerminal(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.TrimSpace(wsRegex.ReplaceAllString(name, " "))
	runes := []rune(name)
	if len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		runes = trimSoft(runes[:cut])
	}
	if len(runes) == 0 {
		return defaultName
	}
	return string(runes)
}

// assemble joins sentences, adding more until lo is reached, then fits the
// result into [lo, hi]. It reports false if the result breaks a rule.
func (s *Shaper) assemble(sentences []string, extra []string, lo, hi int) (string, bool) {
	term := s.policy.Terminal()
	var b strings.Builder
	for _, sent := range sentences {
		b.WriteString(sent + term)
	}
	text := b.String()
	for _, e := range extra {
		if core.Len(text) >= lo {
			break
		}
		text += e + term
	}
	text, ok := sanitize(text, s.policy, s.forbidden)
	if !ok {
		return "", false
	}
	text = Clamp(text, lo, hi, s.policy, true)
	return text, s.valid(text, lo, hi)
}

// fallbacks returns template strings for the entity in a fixed order. Consecutive
// entries differ in every part so they stay far apart in similarity.
func (s *Shaper) fallbacks(entityID string, need int, accept func(string) bool) {
	name := s.safeName(entityID, s.policy.TargetLenMax/3)
	no, nb, nc := len(fallbackOpeners), len(fallbackBodies), len(fallbackClosers)
	total := no * nb * nc

	produced := 0
	for i := 0; i < total && produced < need; i++ {
		opener := fmt.Sprintf(fallbackOpeners[i%no], name)
		body := fallbackBodies[i%nb]
		closer := fallbackClosers[i%nc]
		text, ok := s.assemble([]string{opener, body}, []string{closer, fallbackBodies[(i+1)%nb]}, s.policy.TargetLenMin, s.policy.TargetLenMax)
		if ok && accept(text) {
			produced++
		}
	}
	// Body-first strings survive narrow windows where the opener alone is too long.
	for i := 0; i < total && produced < need; i++ {
		opener := fmt.Sprintf(fallbackOpeners[(i+1)%no], name)
		text, ok := s.assemble([]string{fallbackBodies[i%nb], fallbackClosers[i%nc]}, []string{opener}, s.policy.TargetLenMin, s.policy.TargetLenMax)
		if ok && accept(text) {
			produced++
		}
	}
	// Two bodies per string give another set of combinations.
	for i := 0; i < total && produced < need; i++ {
		opener := fmt.Sprintf(fallbackOpeners[i%no], name)
		a, b := fallbackBodies[i%nb], fallbackBodies[(i/nb+i+1)%nb]
		if a == b {
			continue
		}
		text, ok := s.assemble([]string{opener, a, b}, fallbackClosers, s.policy.TargetLenMin, s.policy.TargetLenMax)
		if ok && accept(text) {
			produced++
		}
	}
	if produced < need {
		s.compactFallbacks(entityID, need-produced, accept)
	}
}

// compactFallbacks fills windows too narrow for the sentence templates. Each
// string is name, lead, middle and tail cut to an exact length. Lead and
// middle walk every pair, and the tail index is their sum, so two strings
// share at most one fragment besides the name.
func (s *Shaper) compactFallbacks(entityID string, need int, accept func(string) bool) {
	lo, hi := s.policy.TargetLenMin, s.policy.TargetLenMax
	n := max(lo, min(hi, compactLen))
	term := s.policy.Terminal()
	size := n - core.Len(term)
	name := s.safeName(entityID, n/4)
	np, nt, nc := len(compactLeads), len(compactTails), len(fallbackClosers)

	produced := 0
	for k := 0; k < np*np && produced < need; k++ {
		a, b := k%np, (k/np+k)%np
		runes := []rune(name + "は" + compactLeads[a] + compactMiddles[b] + compactTails[(a+b)%nt])
		for j := 0; len(runes) < size; j++ {
			runes = append(runes, []rune(fallbackClosers[(k+j)%nc])...)
		}
		text := string(runes[:size]) + term
		if s.valid(text, lo, hi) && accept(text) {
			produced++
		}
	}
}

// fallbackCopy builds the primary copy from the name alone.
func (s *Shaper) fallbackCopy(entityID string) string {
	lo, hi := s.policy.CopyLenMin, s.policy.CopyLenMax
	name := s.safeName(entityID, hi/3)
	n := len(copyTails)
	for i, tpl := range copyTemplates {
		// Each tail at most once, starting from a different one per template
		tails := append(append([]string{}, copyTails[i%n:]...), copyTails[:i%n]...)
		if text, ok := s.assemble([]string{fmt.Sprintf(tpl, name)}, tails, lo, hi); ok {
			return text
		}
	}
	return Clamp(fmt.Sprintf(copyTemplates[0], name)+s.policy.Terminal(), lo, hi, s.policy, true)
}
