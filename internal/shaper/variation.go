package shaper

import (
	"altwriter/internal/core"
	"fmt"
	"strings"
	"unicode/utf8"
)

// qualifiers are appended to a stem to lengthen it or to vary an accepted
// string. They read naturally both as a new sentence and after "、".
var qualifiers = []string{
	"毎日の暮らしの中で無理なく使い続けられる点も魅力です",
	"使う人のことを考えた細やかなつくりが安心感につながります",
	"ご自宅用としてはもちろん、大切な方への贈り物にも選ばれています",
	"季節を問わず活躍し、長く手元に置いておきたくなる仕上がりです",
	"シンプルながら使うほどに良さを実感できるアイテムです",
	"忙しい日々の中でも手軽に取り入れられるのがうれしいポイントです",
	"初めての方でも扱いやすく、気軽に試せる仕様になっています",
	"暮らしに寄り添うやさしい使い心地を大切にしています",
	"必要なときにさっと使える手軽さで、日常の小さな手間を減らします",
	"よく考えられた設計で、使うたびに心地よさを感じられます",
	"落ち着いた印象で、どんな場面にも自然になじみます",
	"長く愛用できる品質を目指して、細部まで丁寧に仕上げています",
}

// hintQualifiers weave a knowledge term into a qualifier.
var hintQualifiers = []string{
	"%sを大切にしたい方にも向いています",
	"%sを意識した毎日にもよくなじみます",
	"%sを求める方にも選びやすい一品です",
}

// endingSwaps vary the close of a stem without changing its meaning.
var endingSwaps = [][2]string{
	{"できます", "可能です"},
	{"可能です", "できます"},
	{"なります", "なっています"},
	{"します", "してくれます"},
	{"ています", "ているのも特長です"},
	{"です", "となっています"},
}

const maxHintLen = 12

func (s *Shaper) qualifierPool() []string {
	out := make([]string, 0, len(qualifiers)+len(hintQualifiers)*len(s.hints))
	for _, q := range qualifiers {
		if _, bad := s.forbidden.Find(q); !bad {
			out = append(out, q)
		}
	}
	for i, h := range s.hints {
		q := fmt.Sprintf(hintQualifiers[i%len(hintQualifiers)], h)
		if _, bad := s.forbidden.Find(q); !bad {
			out = append(out, q)
		}
	}
	return out
}

// usableHints keeps short single-phrase terms that contain no forbidden word.
func usableHints(terms []string, forbidden core.WordSet) []string {
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" || utf8.RuneCountInString(t) > maxHintLen || strings.ContainsAny(t, "。、,!?！？「」\"") {
			continue
		}
		if _, bad := forbidden.Find(t); bad {
			continue
		}
		out = append(out, t)
	}
	return out
}

// stems lists the prefixes of text a variant may keep: whole sentences,
// single sentences, and clauses ending at "、".
func (s *Shaper) stems(text string) []string {
	limit := s.policy.TargetLenMax - 16
	var out []string
	seen := map[string]bool{}
	push := func(stem string) {
		n := core.Len(stem)
		if n < s.policy.DiscardBelow || n > limit || seen[stem] {
			return
		}
		seen[stem] = true
		out = append(out, stem)
	}

	sentences := splitSentences(text, s.policy)
	for _, sent := range sentences {
		push(sent)
	}
	prefix := ""
	for _, sent := range sentences {
		prefix += sent
		push(prefix)
	}
	if len(sentences) > 0 {
		runes := []rune(sentences[0])
		for i, r := range runes {
			if r == '、' {
				push(string(runes[:i+1]))
			}
		}
	}
	return out
}

// swapEnding replaces the ending of the stem's last sentence.
func (s *Shaper) swapEnding(stem string) string {
	runes := []rune(stem)
	if len(runes) == 0 || !s.policy.IsTerminal(runes[len(runes)-1]) {
		return stem
	}
	body, term := string(runes[:len(runes)-1]), string(runes[len(runes)-1])
	for _, sw := range endingSwaps {
		if strings.HasSuffix(body, sw[0]) {
			return strings.TrimSuffix(body, sw[0]) + sw[1] + term
		}
	}
	return stem
}

// extend appends qualifiers starting at offset until the text reaches the
// target window. It reports false if no combination fits.
func (s *Shaper) extend(stem string, quals []string, offset int) (string, bool) {
	if len(quals) == 0 {
		return "", false
	}
	term := s.policy.Terminal()
	lo, hi := s.policy.TargetLenMin, s.policy.TargetLenMax
	out := stem
	for i := 0; i < len(quals); i++ {
		q := quals[(offset+i)%len(quals)]
		joined := join(out, q, term, s.policy)
		n := core.Len(joined)
		if n > hi {
			continue
		}
		out = joined
		if n >= lo {
			return out, true
		}
	}
	return "", false
}

// join attaches a qualifier after a clause ("、") or a sentence.
func join(stem, qualifier, term string, policy core.Policy) string {
	if strings.HasSuffix(stem, "、") || stem == "" {
		return stem + qualifier + term
	}
	if !policy.EndsWithTerminal(stem) {
		stem += term
	}
	return stem + qualifier + term
}
