package store

import (
	"altwriter/internal/core"
	"altwriter/internal/logger"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format is an output file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// utf8BOM makes spreadsheet tools on Japanese Windows read the CSV as UTF-8.
const utf8BOM = "\ufeff"

// ParseFormats parses a comma separated format list, ignoring unknown entries.
func ParseFormats(s string) []Format {
	var out []Format
	seen := map[Format]bool{}
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		if (f == FormatCSV || f == FormatJSON) && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// Record is one finished entity plus the raw AI lines it was shaped from.
type Record struct {
	Output core.EntityOutput
	Raw    []string
}

// Options configures where and how a run is written.
type Options struct {
	Dir     string
	Prefix  string
	RunID   string
	Formats []Format
	Diff    bool
	Quota   int
	Now     func() time.Time
}

// Store writes run results as flat files.
type Store struct {
	opts Options
	log  zerolog.Logger
}

// NewStore creates the output directory and returns a Store.
func NewStore(opts Options) (*Store, error) {
	if opts.Dir == "" {
		opts.Dir = "output"
	}
	if opts.Prefix == "" {
		opts.Prefix = "alt"
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []Format{FormatCSV, FormatJSON}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Store{opts: opts, log: logger.For("store")}, nil
}

// Write persists records in every configured format and returns the paths written.
func (s *Store) Write(records []Record) ([]string, error) {
	stamp := s.opts.Now().Format("20060102_150405")
	var paths []string
	var errs []error

	for _, f := range s.opts.Formats {
		path := s.path("", stamp, string(f))
		var err error
		switch f {
		case FormatCSV:
			err = writeFile(path, func(w io.Writer) error { return WriteCSV(w, records, s.opts.Quota) })
		case FormatJSON:
			err = writeFile(path, func(w io.Writer) error { return WriteJSON(w, records) })
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}
	if s.opts.Diff {
		path := s.path("diff", stamp, "csv")
		if err := writeFile(path, func(w io.Writer) error { return WriteDiff(w, records) }); err != nil {
			errs = append(errs, err)
		} else {
			paths = append(paths, path)
		}
	}

	for _, p := range paths {
		s.log.Info().Str("path", p).Int("records", len(records)).Msg("wrote output")
	}
	return paths, errors.Join(errs...)
}

// path builds <prefix>[_kind]_<timestamp>_<runid8>.<ext>.
func (s *Store) path(kind, stamp, ext string) string {
	parts := []string{s.opts.Prefix}
	if kind != "" {
		parts = append(parts, kind)
	}
	parts = append(parts, stamp)
	if id := shortID(s.opts.RunID); id != "" {
		parts = append(parts, id)
	}
	return filepath.Join(s.opts.Dir, strings.Join(parts, "_")+"."+ext)
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteCSV writes one row per entity: name, copy, then one column per ALT slot.
func WriteCSV(w io.Writer, records []Record, quota int) error {
	for _, r := range records {
		if len(r.Output.Texts) > quota {
			quota = len(r.Output.Texts)
		}
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := []string{"商品名", "キャッチコピー"}
	for i := 1; i <= quota; i++ {
		header = append(header, "ALT_"+strconv.Itoa(i))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := make([]string, 0, len(header))
		row = append(row, r.Output.EntityID, r.Output.PrimaryText)
		for i := 0; i < quota; i++ {
			if i < len(r.Output.Texts) {
				row = append(row, r.Output.Texts[i])
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the outputs as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	outputs := make([]core.EntityOutput, len(records))
	for i, r := range records {
		outputs[i] = r.Output
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(outputs)
}

// WriteDiff pairs each raw AI line with the final string in the same slot.
func WriteDiff(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"product_name", "raw", "refined", "status"}); err != nil {
		return err
	}
	for _, r := range records {
		n := max(len(r.Raw), len(r.Output.Texts))
		for i := 0; i < n; i++ {
			var raw, refined string
			if i < len(r.Raw) {
				raw = r.Raw[i]
			}
			if i < len(r.Output.Texts) {
				refined = r.Output.Texts[i]
			}
			status := "DIFF"
			if raw == refined {
				status = "SAME"
			}
			if err := cw.Write([]string{r.Output.EntityID, raw, refined, status}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadJSON loads a file written by WriteJSON.
func ReadJSON(path string) ([]core.EntityOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var outputs []core.EntityOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return outputs, nil
}
