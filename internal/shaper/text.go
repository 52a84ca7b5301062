package shaper

import (
	"altwriter/internal/core"
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	decorRegex       = regexp.MustCompile(`[※★☆◆◇■□●◎○▲△▼▽▶►→⇒⇨↓↑←•♪♬♫✦✧【】〔〕［］\[\]《》≪≫〈〉＜＞]+`)
	shortParenRegex  = regexp.MustCompile(`[（(][^）)]{0,20}[）)]`)
	ellipsisRegex    = regexp.MustCompile(`(?:…|‥|\.{3,}|・{3,})+`)
	wsRegex          = regexp.MustCompile(`[\s　]+`)
	spaceBeforeRegex = regexp.MustCompile(` +([、。，,．！？!?」』）)])`)
	spaceAfterRegex  = regexp.MustCompile(`([、。，,「『（(]) +`)
	multiCommaRegex  = regexp.MustCompile(`[、,，]{2,}`)
	commaTermRegex   = regexp.MustCompile(`[、,，・]+([。！？!?．])`)
	leadMarkerRegex  = regexp.MustCompile(`^(?:[-*+•・]+|[0-9０-９]{1,3}[\.\)）．]\s|[①-⑳])\s*`)
)

const (
	softSeparators = "、,，・/／:：;； "
	quoteChars     = "\"'「」『』“”‘’"
)

// Normalize collapses whitespace and repeated punctuation and strips
// decoration, markup, emoji and dangling quotes.
func Normalize(s string, policy core.Policy) string {
	s = htmlTagRegex.ReplaceAllString(s, "")
	s = strings.Map(dropSymbols, s)
	s = decorRegex.ReplaceAllString(s, "")
	s = shortParenRegex.ReplaceAllString(s, "")
	s = ellipsisRegex.ReplaceAllString(s, "")
	s = wsRegex.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = spaceBeforeRegex.ReplaceAllString(s, "$1")
	s = spaceAfterRegex.ReplaceAllString(s, "$1")
	s = multiCommaRegex.ReplaceAllString(s, "、")
	s = commaTermRegex.ReplaceAllString(s, "$1")
	s = collapseTerminals(s, policy)
	s = leadMarkerRegex.ReplaceAllString(s, "")
	return trimEdges(s)
}

// dropSymbols removes emoji and pictographs along with their joiners.
func dropSymbols(r rune) rune {
	switch {
	case r == '\u200d', r == '\ufe0f', r == '\ufe0e':
		return -1
	case unicode.Is(unicode.So, r), unicode.Is(unicode.Co, r), unicode.Is(unicode.Cc, r) && !unicode.IsSpace(r):
		return -1
	}
	return r
}

// collapseTerminals keeps the first rune of every run of terminals.
func collapseTerminals(s string, policy core.Policy) string {
	var b strings.Builder
	b.Grow(len(s))
	prevTerminal := false
	for _, r := range s {
		t := policy.IsTerminal(r)
		if t && prevTerminal {
			continue
		}
		prevTerminal = t
		b.WriteRune(r)
	}
	return b.String()
}

func trimEdges(s string) string {
	for {
		prev := s
		s = strings.TrimLeft(s, softSeparators+quoteChars+"。．.!?！？　")
		s = strings.TrimRight(s, softSeparators+quoteChars+"　")
		if s == prev {
			return s
		}
	}
}

// StripForbidden deletes every forbidden word, longest first, until none
// remains. Deleting can join fragments into a new forbidden word, hence the loop.
func StripForbidden(s string, forbidden core.WordSet) string {
	for {
		w, ok := forbidden.Find(s)
		if !ok {
			return s
		}
		s = strings.ReplaceAll(s, w, "")
	}
}

// sanitize alternates normalization and forbidden-word deletion until the
// string is stable. It reports false if a forbidden word survives.
func sanitize(s string, policy core.Policy, forbidden core.WordSet) (string, bool) {
	s = Normalize(s, policy)
	for i := 0; i < 8; i++ {
		stripped := StripForbidden(s, forbidden)
		next := Normalize(stripped, policy)
		if next == s {
			break
		}
		s = next
	}
	_, found := forbidden.Find(s)
	return s, !found
}

func isSoft(r rune) bool { return strings.ContainsRune(softSeparators, r) }

func trimSoft(r []rune) []rune {
	for len(r) > 0 && (isSoft(r[len(r)-1]) || strings.ContainsRune(quoteChars, r[len(r)-1])) {
		r = r[:len(r)-1]
	}
	return r
}

// Clamp fits s into at most hi runes and closes it with a terminal. It prefers
// the last terminal landing in [lo, hi]. Unless strict, it then accepts a
// complete sentence shorter than lo so backfill can lengthen it. After that
// comes a soft boundary in range, and last hard truncation.
func Clamp(s string, lo, hi int, policy core.Policy, strict bool) string {
	runes := []rune(s)
	term := []rune(policy.Terminal())
	if len(runes) <= hi {
		return string(closeSentence(runes, hi, policy))
	}

	for i := hi - 1; i >= lo-1 && i >= 0; i-- {
		if policy.IsTerminal(runes[i]) {
			return string(runes[:i+1])
		}
	}
	if !strict {
		floor := max(policy.DiscardBelow, lo/2)
		for i := lo - 2; i >= floor-1 && i >= 0; i-- {
			if policy.IsTerminal(runes[i]) {
				return string(runes[:i+1])
			}
		}
	}
	for i := hi - 1; i >= lo-1 && i > 0; i-- {
		if !isSoft(runes[i]) {
			continue
		}
		head := trimSoft(runes[:i])
		if len(head)+len(term) >= lo && len(head)+len(term) <= hi {
			return string(head) + string(term)
		}
	}
	head := trimSoft(runes[:hi-len(term)])
	return string(head) + string(term)
}

func closeSentence(runes []rune, hi int, policy core.Policy) []rune {
	runes = trimSoft(runes)
	if len(runes) == 0 {
		return runes
	}
	if policy.IsTerminal(runes[len(runes)-1]) {
		return runes
	}
	term := []rune(policy.Terminal())
	if len(runes)+len(term) > hi {
		runes = trimSoft(runes[:hi-len(term)])
	}
	return append(runes, term...)
}

// pathological reports listy or symbol-heavy strings and anything below the
// absolute minimum length.
func pathological(s string, policy core.Policy) bool {
	n := 0
	seps := 0
	letters := 0
	for _, r := range s {
		n++
		switch {
		case isSoft(r), r == '|', r == '｜':
			seps++
		case unicode.IsLetter(r), unicode.IsDigit(r):
			letters++
		}
	}
	if n == 0 || n < policy.DiscardBelow {
		return true
	}
	if float64(seps)/float64(n) > 0.2 {
		return true
	}
	return float64(letters)/float64(n) < 0.5
}

// splitSentences cuts s after every terminal, keeping the terminals.
func splitSentences(s string, policy core.Policy) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i, r := range runes {
		if policy.IsTerminal(r) {
			if seg := strings.TrimSpace(string(runes[start : i+1])); seg != "" {
				out = append(out, seg)
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		if seg := strings.TrimSpace(string(runes[start:])); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
