package prompt

import (
	"altwriter/internal/core"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testDigest() *core.Digest {
	return &core.Digest{
		Terms:     map[core.Category][]string{core.CategoryLexical: {"充電器"}},
		Summary:   "知見: 語彙: 充電器。",
		Forbidden: core.NewWordSet([]string{"画像", "最安"}),
	}
}

func TestComposeJSONMode(t *testing.T) {
	p := Compose("Widget X", testDigest(), core.DefaultPolicy(), core.ModeJSON)

	assert.Contains(t, p.System, `"alts"`)
	assert.Contains(t, p.System, `"copy"`)
	assert.Contains(t, p.System, "ALTを20件")
	assert.Contains(t, p.System, "100〜130文字")
	assert.Contains(t, p.System, "絶対に使わない: 最安、画像")
	assert.Contains(t, p.System, "。 ！ ？ ! ?")

	assert.True(t, strings.HasPrefix(p.User, "商品名: Widget X\n"))
	assert.Contains(t, p.User, "知見: 語彙: 充電器。")
	assert.Contains(t, p.User, StructureHint)
}

func TestComposeTextMode(t *testing.T) {
	policy := core.DefaultPolicy()
	policy.RequiredQuota = 5
	p := Compose("Widget X", testDigest(), policy, core.ModeText)

	assert.NotContains(t, p.System, `"alts"`)
	assert.Contains(t, p.System, "COPY: ")
	assert.Contains(t, p.System, "ALTを5本")
	assert.Contains(t, p.User, "行区切り")
}

func TestComposeIsPure(t *testing.T) {
	d := testDigest()
	a := ComposeAll("Widget X", d, core.DefaultPolicy())
	b := ComposeAll("Widget X", d, core.DefaultPolicy())
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[core.ModeJSON], a[core.ModeText])
}

func TestComposeWithoutDigest(t *testing.T) {
	p := Compose("Widget X", nil, core.DefaultPolicy(), core.ModeJSON)
	assert.NotContains(t, p.System, "絶対に使わない")
	assert.NotContains(t, p.User, "参考情報")
}
