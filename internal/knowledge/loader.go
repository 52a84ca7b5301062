package knowledge

import (
	"altwriter/internal/core"
	"altwriter/internal/logger"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// categoryRule maps a filename keyword to a category. Rules are checked in order.
type categoryRule struct {
	keywords []string
	category core.Category
}

var categoryRules = []categoryRule{
	{[]string{"lexical", "cluster"}, core.CategoryLexical},
	{[]string{"market", "vocab"}, core.CategoryMarket},
	{[]string{"semantic", "struct"}, core.CategorySemantic},
	{[]string{"persona", "tone", "style"}, core.CategoryPersona},
	{[]string{"forbid", "normalized", "blacklist", "ngword"}, core.CategoryForbidden},
	{[]string{"template", "composer", "hint"}, core.CategoryTemplate},
}

// termKeys are the dict keys that hold terms in list-of-dict files.
var termKeys = []string{
	"terms", "vocabulary", "keywords", "words", "forbidden_words", "forbidden",
	"hints", "templates", "concepts", "features", "scenes", "targets", "benefits",
	"use_cases", "tone", "term", "word", "value", "ng", "pattern",
}

// metaKeys are top-level keys that describe the file rather than hold knowledge.
var metaKeys = map[string]bool{
	"meta": true, "metadata": true, "generated_at": true, "created_at": true,
	"timestamp": true, "version": true, "source": true, "source_file": true,
}

const maxTermLen = 60

var spaceRe = regexp.MustCompile(`[\s\x{3000}]+`)

// Classify infers a fragment category from a file name. First match wins.
func Classify(name string) core.Category {
	lower := strings.ToLower(filepath.Base(name))
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return core.CategoryUnknown
}

// Loader reads schema-free JSON knowledge files.
type Loader struct {
	log zerolog.Logger
}

// NewLoader creates a loader logging under the knowledge component.
func NewLoader() *Loader {
	return &Loader{log: logger.For("knowledge")}
}

// Load reads every *.json file in dir in name order. Unreadable, malformed or
// unrecognised files are skipped; a missing directory yields no fragments.
func (l *Loader) Load(dir string) []core.Fragment {
	entries, err := os.ReadDir(dir)
	if err != nil {
		l.log.Warn().Err(err).Str("dir", dir).Msg("knowledge directory unavailable, continuing without fragments")
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	fragments := make([]core.Fragment, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		frag, ok := l.LoadFile(path)
		if !ok {
			continue
		}
		fragments = append(fragments, frag)
	}
	l.log.Info().Str("dir", dir).Int("files", len(names)).Int("fragments", len(fragments)).Msg("knowledge loaded")
	return fragments
}

// LoadFile extracts one fragment. ok is false when the file is skipped.
func (l *Loader) LoadFile(path string) (core.Fragment, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.log.Warn().Err(err).Str("file", path).Msg("skipping unreadable knowledge file")
		return core.Fragment{}, false
	}
	terms, ok := Extract(data)
	if !ok {
		l.log.Warn().Str("file", path).Msg("skipping knowledge file with unrecognised shape")
		return core.Fragment{}, false
	}
	category := Classify(path)
	l.log.Debug().Str("file", path).Str("category", string(category)).Int("terms", len(terms)).Msg("fragment extracted")
	return core.Fragment{SourcePath: path, Category: category, Terms: terms}, true
}

// decoder is one typed adapter tried against a file's bytes.
type decoder func(data []byte) ([]string, bool)

var decoders = []decoder{
	decodeStringList,
	decodeDictList,
	decodeDictOfLists,
}

// Extract runs the decoders in order and returns the first non-empty result.
func Extract(data []byte) ([]string, bool) {
	if !json.Valid(data) {
		return nil, false
	}
	for _, dec := range decoders {
		if raw, ok := dec(data); ok {
			terms := normalizeTerms(raw)
			if len(terms) > 0 {
				return terms, true
			}
		}
	}
	return nil, false
}

func decodeStringList(data []byte) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false
	}
	return list, len(list) > 0
}

func decodeDictList(data []byte) ([]string, bool) {
	var list []any
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false
	}
	var out []string
	var dicts []map[string]any
	for _, item := range list {
		switch x := item.(type) {
		case string:
			out = append(out, x)
		case map[string]any:
			dicts = append(dicts, x)
			for _, key := range termKeys {
				if v, ok := x[key]; ok {
					out = appendStrings(out, v, 2)
				}
			}
		}
	}
	if len(out) == 0 {
		// No known key: take the string leaves of each dict.
		for _, d := range dicts {
			out = appendStrings(out, mapValues(d), 1)
		}
	}
	return out, len(out) > 0
}

func decodeDictOfLists(data []byte) ([]string, bool) {
	var dict map[string]any
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, false
	}
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		if metaKeys[strings.ToLower(k)] {
			continue
		}
		switch v := dict[k].(type) {
		case []any:
			out = appendStrings(out, v, 2)
		case map[string]any:
			out = appendStrings(out, mapValues(v), 2)
		}
	}
	return out, len(out) > 0
}

// appendStrings flattens strings out of v, descending at most depth levels
// of nested lists/dicts.
func appendStrings(out []string, v any, depth int) []string {
	switch x := v.(type) {
	case string:
		return append(out, x)
	case []any:
		if depth < 0 {
			return out
		}
		for _, item := range x {
			out = appendStrings(out, item, depth-1)
		}
	case map[string]any:
		if depth < 0 {
			return out
		}
		found := false
		for _, key := range termKeys {
			if inner, ok := x[key]; ok {
				out = appendStrings(out, inner, depth-1)
				found = true
			}
		}
		if !found {
			out = appendStrings(out, mapValues(x), depth-1)
		}
	}
	return out
}

// mapValues returns the values of m ordered by key.
func mapValues(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		if metaKeys[strings.ToLower(k)] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]any, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, m[k])
	}
	return vals
}

// normalizeTerms trims, collapses whitespace, drops blanks and overlong
// entries, and deduplicates preserving first-seen order.
func normalizeTerms(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
		if t == "" || core.Len(t) > maxTermLen {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
