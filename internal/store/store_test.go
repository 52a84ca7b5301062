package store

import (
	"altwriter/internal/core"
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{
			Output: core.EntityOutput{EntityID: "Widget X", PrimaryText: "軽くて丈夫。", Texts: []string{"一つ目。", "二つ目。"}},
			Raw:    []string{"一つ目。", "二つ目の生テキスト"},
		},
		{
			Output: core.EntityOutput{EntityID: "Gadget, \"Y\"", Texts: []string{"三つ目。", "四つ目。"}},
		},
	}
}

func TestParseFormats(t *testing.T) {
	assert.Equal(t, []Format{FormatCSV, FormatJSON}, ParseFormats("csv, JSON,csv,xml"))
	assert.Empty(t, ParseFormats(""))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords(), 3))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, utf8BOM))
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, utf8BOM))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"商品名", "キャッチコピー", "ALT_1", "ALT_2", "ALT_3"}, rows[0])
	assert.Equal(t, []string{"Widget X", "軽くて丈夫。", "一つ目。", "二つ目。", ""}, rows[1])
	assert.Equal(t, "Gadget, \"Y\"", rows[2][0])
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteJSON(f, sampleRecords()))
	require.NoError(t, f.Close())

	outputs, err := ReadJSON(path)
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "Widget X", outputs[0].EntityID)
	assert.Equal(t, []string{"三つ目。", "四つ目。"}, outputs[1].Texts)

	raw, _ := os.ReadFile(path)
	assert.Contains(t, string(raw), `"product_name": "Widget X"`)
	assert.NotContains(t, string(raw), `\u`, "non-ASCII text is written as is")
}

func TestWriteDiff(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDiff(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"product_name", "raw", "refined", "status"}, rows[0])
	assert.Equal(t, "SAME", rows[1][3])
	assert.Equal(t, "DIFF", rows[2][3])
	assert.Equal(t, []string{"Gadget, \"Y\"", "", "三つ目。", "DIFF"}, rows[3])
}

func TestStore_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	runID := uuid.NewString()
	fixed := time.Date(2025, 11, 5, 13, 13, 0, 0, time.UTC)

	s, err := NewStore(Options{Dir: dir, RunID: runID, Diff: true, Quota: 2, Now: func() time.Time { return fixed }})
	require.NoError(t, err)

	paths, err := s.Write(sampleRecords())
	require.NoError(t, err)
	require.Len(t, paths, 3)

	id := strings.ReplaceAll(runID, "-", "")[:8]
	assert.Equal(t, filepath.Join(dir, "alt_20251105_131300_"+id+".csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "alt_20251105_131300_"+id+".json"), paths[1])
	assert.Equal(t, filepath.Join(dir, "alt_diff_20251105_131300_"+id+".csv"), paths[2])
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestReadJSON_Errors(t *testing.T) {
	_, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))
	_, err = ReadJSON(bad)
	assert.Error(t, err)
}
