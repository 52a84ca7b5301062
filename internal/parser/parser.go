package parser

import (
	"altwriter/internal/core"
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Strategy names the cascade step that produced a result.
type Strategy string

const (
	StrategyJSON     Strategy = "json"
	StrategyEmbedded Strategy = "embedded_json"
	StrategyLines    Strategy = "lines"
	StrategyNone     Strategy = "none"
)

var (
	// Leading list markers: bullets, "1." / "1)" / "(1)", circled digits and "ALT3:" labels.
	enumMarkerRegex = regexp.MustCompile(`^\s*(?:[-*+•・●○◆◇■□▶►]+\s*|[\(（]?[0-9０-９]{1,3}\s*[\.\)）．:：、]\s*|[①-⑳]\s*|(?i:alt)\s*[_\-]?[0-9０-９]*\s*[:：]\s*)`)

	// "COPY: ..." line in plain-text replies.
	copyLineRegex = regexp.MustCompile(`^\s*(?i:copy|catch\s*copy)\s*[:：]\s*(.*)$`)

	trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

	sentenceRegex = regexp.MustCompile(`[^。！？!?]+[。！？!?]+`)

	smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‟", `"`, "＂", `"`, "‘", "'", "’", "'")
)

// copyKeys hold the primary copy in a JSON object; listKeys are checked
// before falling back to the first list-valued field.
var (
	copyKeys = []string{"copy", "catch_copy", "catchcopy", "headline", "primary"}
	listKeys = []string{"alts", "alt", "texts", "lines", "candidates", "items"}
	itemKeys = []string{"text", "alt", "content", "value"}
)

// Result is the outcome of parsing one raw reply.
type Result struct {
	Copy       string
	Candidates []core.Candidate
	Strategy   Strategy
}

// Texts returns the candidate strings in order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Text
	}
	return out
}

// Parser extracts candidate strings from raw backend output.
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// Parse runs the cascade: whole-text JSON, then the first balanced JSON span
// after light repair, then line splitting. It never fails; unusable input
// yields an empty candidate list.
func (p *Parser) Parse(raw string) Result {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if raw == "" {
		return Result{Strategy: StrategyNone}
	}

	if copyText, texts, ok := decodeJSON([]byte(raw)); ok {
		return newResult(copyText, texts, StrategyJSON)
	}

	for _, text := range []string{raw, repair(raw)} {
		for _, span := range balancedSpans(text) {
			if copyText, texts, ok := decodeJSON([]byte(span)); ok && len(texts) > 0 {
				return newResult(copyText, texts, StrategyEmbedded)
			}
		}
	}

	copyText, texts := splitLines(raw)
	if len(texts) == 0 {
		return Result{Copy: copyText, Strategy: StrategyNone}
	}
	return newResult(copyText, texts, StrategyLines)
}

// Parse is a convenience wrapper around Parser.Parse.
func Parse(raw string) Result {
	return NewParser().Parse(raw)
}

func newResult(copyText string, texts []string, strategy Strategy) Result {
	cands := make([]core.Candidate, 0, len(texts))
	for _, t := range texts {
		cands = append(cands, core.Candidate{Text: t, Origin: core.OriginAI})
	}
	return Result{Copy: strings.TrimSpace(copyText), Candidates: cands, Strategy: strategy}
}

// decodeJSON accepts an object or an array. For objects the key order of
// the document is kept so "first list-valued field" is well defined.
func decodeJSON(data []byte) (string, []string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return "", nil, false
	}
	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return "", nil, false
		}
		return "", stringsFrom(items), true
	case '{':
		fields, err := orderedFields(data)
		if err != nil {
			return "", nil, false
		}
		return decodeObject(fields), textsFromObject(fields), true
	}
	return "", nil, false
}

type field struct {
	key   string
	value json.RawMessage
}

func orderedFields(data []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: v})
	}
	return fields, nil
}

func decodeObject(fields []field) string {
	for _, want := range copyKeys {
		for _, f := range fields {
			if !strings.EqualFold(f.key, want) {
				continue
			}
			var s string
			if json.Unmarshal(f.value, &s) == nil {
				return s
			}
		}
	}
	return ""
}

func textsFromObject(fields []field) []string {
	for _, want := range listKeys {
		for _, f := range fields {
			if strings.EqualFold(f.key, want) {
				if texts := listValue(f.value); len(texts) > 0 {
					return texts
				}
			}
		}
	}
	for _, f := range fields {
		if texts := listValue(f.value); len(texts) > 0 {
			return texts
		}
	}
	// One level down, e.g. {"result": {"alts": [...]}}.
	for _, f := range fields {
		if v := bytes.TrimSpace(f.value); len(v) > 0 && v[0] == '{' {
			if inner, err := orderedFields(v); err == nil {
				if texts := textsFromObject(inner); len(texts) > 0 {
					return texts
				}
			}
		}
	}
	return nil
}

func listValue(v json.RawMessage) []string {
	var items []json.RawMessage
	if json.Unmarshal(v, &items) != nil {
		return nil
	}
	return stringsFrom(items)
}

// stringsFrom keeps string items and the text of {"text": ...}-style items.
func stringsFrom(items []json.RawMessage) []string {
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj map[string]any
		if json.Unmarshal(item, &obj) != nil {
			continue
		}
		for _, k := range itemKeys {
			if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
				break
			}
		}
	}
	return out
}

// balancedSpans returns every balanced {...} or [...] span in order of
// their opening bracket, skipping brackets inside JSON strings.
func balancedSpans(s string) []string {
	var spans []string
	for start := 0; start < len(s); start++ {
		c := s[start]
		if c != '{' && c != '[' {
			continue
		}
		if end := matchBracket(s, start); end > start {
			spans = append(spans, s[start:end+1])
			if len(spans) >= 8 {
				break
			}
		}
	}
	return spans
}

func matchBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// repair fixes the usual defects of hand-written JSON: smart quotes,
// full-width structural punctuation and trailing commas.
func repair(s string) string {
	s = smartQuotes.Replace(s)
	s = width.Fold.String(s)
	return trailingCommaRegex.ReplaceAllString(s, "$1")
}

// splitLines is the plain-text fallback.
func splitLines(raw string) (string, []string) {
	var copyText string
	var lines []string

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if m := copyLineRegex.FindStringSubmatch(line); m != nil {
			if copyText == "" {
				copyText = strings.TrimSpace(m[1])
			}
			continue
		}
		line = stripMarker(line)
		line = strings.Trim(line, `"',`)
		if !hasContent(line) {
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) < 2 {
		var sentences []string
		for _, line := range lines {
			sentences = append(sentences, splitSentences(line)...)
		}
		if len(sentences) > len(lines) {
			lines = sentences
		}
	}
	return copyText, lines
}

// stripMarker removes one leading list marker. "3.5mm" keeps its digits.
func stripMarker(line string) string {
	loc := enumMarkerRegex.FindStringIndex(line)
	if loc == nil {
		return line
	}
	marker, rest := strings.TrimSpace(line[:loc[1]]), line[loc[1]:]
	if (strings.HasSuffix(marker, ".") || strings.HasSuffix(marker, "．")) && rest != "" && unicode.IsDigit([]rune(rest)[0]) {
		return line
	}
	return strings.TrimSpace(rest)
}

func splitSentences(s string) []string {
	matches := sentenceRegex.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return []string{s}
	}
	var out []string
	last := 0
	for _, m := range matches {
		if sent := strings.TrimSpace(s[m[0]:m[1]]); hasContent(sent) {
			out = append(out, sent)
		}
		last = m[1]
	}
	if rest := strings.TrimSpace(s[last:]); hasContent(rest) {
		out = append(out, rest)
	}
	return out
}

// hasContent reports whether s contains at least one letter or digit.
func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
