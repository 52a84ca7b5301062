// Package entities reads the product names a batch run works through.
package entities

import (
	"altwriter/internal/logger"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Encoding names accepted by Load
const (
	EncodingAuto     = "auto"
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// DefaultColumn is the header the Rakuten export uses for product names
const DefaultColumn = "商品名"

// ErrNoEntities is returned when the file holds no usable product name
var ErrNoEntities = errors.New("no product names found")

// fallbackColumns are tried, case-insensitively, after the requested column
var fallbackColumns = []string{DefaultColumn, "name", "product_name"}

// Loader reads entity lists from delimited files
type Loader struct {
	Column   string
	Encoding string
	log      zerolog.Logger
}

// NewLoader creates a loader for the given column and encoding
func NewLoader(column, encoding string) *Loader {
	return &Loader{Column: column, Encoding: encoding, log: logger.For("entities")}
}

// Load reads path and returns its product names, trimmed, without blanks
// and deduplicated in first-seen order. A missing file is an error.
func Load(path, column, encoding string) ([]string, error) {
	return NewLoader(column, encoding).Load(path)
}

// Load reads the entity file at path
func (l *Loader) Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}
	names, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.log.Info().Str("path", path).Int("entities", len(names)).Msg("loaded entities")
	return names, nil
}

// Parse decodes data and extracts the entity column
func (l *Loader) Parse(data []byte) ([]string, error) {
	text, err := decode(data, l.Encoding)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoEntities
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := resolveColumn(header, l.Column)
	if l.Column != "" && !strings.EqualFold(strings.TrimSpace(header[col]), l.Column) {
		l.log.Warn().Str("column", l.Column).Str("using", header[col]).Msg("column not found, falling back")
	}

	seen := make(map[string]struct{})
	var names []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if col >= len(record) {
			continue
		}
		name := strings.TrimSpace(record[col])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrNoEntities
	}
	return names, nil
}

// resolveColumn picks the requested column, then the known product-name
// headers, then the first column.
func resolveColumn(header []string, want string) int {
	candidates := fallbackColumns
	if want != "" {
		candidates = append([]string{want}, fallbackColumns...)
	}
	for _, name := range candidates {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return 0
}

// decode turns raw bytes into UTF-8 text without a BOM. In auto mode,
// input that is not valid UTF-8 is read as Shift_JIS (cp932).
func decode(data []byte, encoding string) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	switch strings.ToLower(strings.ReplaceAll(encoding, "-", "_")) {
	case "", EncodingAuto:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return decodeShiftJIS(data)
	case "utf_8", "utf8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("input is not valid UTF-8")
		}
		return string(data), nil
	case EncodingShiftJIS, "sjis", "cp932", "windows_31j":
		return decodeShiftJIS(data)
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func decodeShiftJIS(data []byte) (string, error) {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("failed to decode Shift_JIS input: %w", err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}
