package pipeline

import (
	"altwriter/internal/core"
	"altwriter/internal/llm"
	"altwriter/internal/shaper"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var widgetLines = []string{
	"Widget Xは充電式で繰り返し使えるため、電池交換の手間がかからず経済的です。フル充電で長時間動作するので、アウトドアや停電時の備えとしても心強い存在になります。",
	"Widget Xは手になじむ丸みのある形状で、長時間握っていても疲れにくい設計です。シンプルな操作ボタンは直感的に扱えるので、機械が苦手な方やご年配の方にも使いやすく仕上がっています。",
	"Widget Xは軽量でコンパクトなボディが特長で、通勤や旅行のバッグにもすっきり収まります。毎日の持ち歩きでも負担になりにくく、必要なときにすぐ取り出して使える手軽さが魅力です。",
}

const widgetCopy = "軽くて丈夫なWidget Xで、毎日の持ち歩きがもっと快適に。通勤にも旅行にも頼れる相棒です。"

func widgetJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"copy": widgetCopy, "alts": widgetLines})
	require.NoError(t, err)
	return string(b)
}

func fastRetry() llm.RetryPolicy {
	return llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, CallTimeout: time.Second}
}

func buildPipeline(t *testing.T, backend llm.Backend) *Pipeline {
	t.Helper()
	p, err := NewBuilder().WithBackend(backend).WithRetryPolicy(fastRetry()).Build()
	require.NoError(t, err)
	return p
}

// requireOutput checks the invariants every finished entity must satisfy.
func requireOutput(t *testing.T, policy core.Policy, res EntityResult) {
	t.Helper()
	require.Len(t, res.Output.Texts, policy.RequiredQuota)
	for i, text := range res.Output.Texts {
		n := core.Len(text)
		assert.GreaterOrEqual(t, n, policy.TargetLenMin, "text %d: %q", i, text)
		assert.LessOrEqual(t, n, policy.TargetLenMax, "text %d: %q", i, text)
		assert.True(t, policy.EndsWithTerminal(text), "text %d: %q", i, text)
		for j := i + 1; j < len(res.Output.Texts); j++ {
			assert.Less(t, shaper.Similarity(text, res.Output.Texts[j]), policy.SimilarityThreshold)
		}
	}
	assert.Equal(t, StateDone, res.Trace[len(res.Trace)-1])
}

func TestProcess_Success(t *testing.T) {
	backend := llm.NewMockBackend(llm.Step{Text: widgetJSON(t)})
	p := buildPipeline(t, backend)

	res := p.Process(context.Background(), "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.Equal(t, []State{StateStart, StatePromptBuilt, StateGenerated, StateParsed, StateShaped, StateDone}, res.Trace)
	assert.False(t, res.Errored())
	assert.Equal(t, "Widget X", res.Output.EntityID)
	assert.Equal(t, widgetCopy, res.Output.PrimaryText)
	assert.Equal(t, widgetLines, res.Raw)
	assert.Equal(t, 3, res.ShapeStats.AI)
	assert.Equal(t, widgetLines[0], res.Output.Texts[0])
	assert.Equal(t, 1, len(backend.Calls()))
	assert.Equal(t, core.ModeJSON, backend.Calls()[0].Mode)
}

func TestProcess_FatalRoutesToShaping(t *testing.T) {
	backend := llm.NewMockBackend(llm.Step{Err: fmt.Errorf("%w: invalid api key", llm.ErrFatal)})
	p := buildPipeline(t, backend)

	res := p.Process(context.Background(), "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.Equal(t, []State{StateStart, StatePromptBuilt, StateGenerated, StateErrored, StateShaped, StateDone}, res.Trace)
	assert.True(t, res.Errored())
	assert.Equal(t, llm.Fatal, res.Outcome.Kind)
	assert.Empty(t, res.Raw)
	assert.Equal(t, core.DefaultPolicy().RequiredQuota, res.ShapeStats.Fallback)
	for _, text := range res.Output.Texts {
		assert.Contains(t, text, "Widget X")
	}
	assert.NotEmpty(t, res.Output.PrimaryText)
	assert.Len(t, backend.Calls(), 1, "fatal errors are not retried")
}

func TestProcess_RetriesExhausted(t *testing.T) {
	backend := llm.NewMockBackend(llm.Step{Err: llm.ErrTransient})
	p := buildPipeline(t, backend)

	res := p.Process(context.Background(), "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.True(t, res.Errored())
	assert.Equal(t, 3, res.Outcome.Attempts)
	assert.Len(t, backend.Calls(), 3)
}

func TestProcess_FormatFallback(t *testing.T) {
	text := "COPY: " + widgetCopy + "\n" + strings.Join(widgetLines, "\n")
	backend := llm.NewMockBackend(
		llm.Step{Err: fmt.Errorf("%w: response_format is not supported", llm.ErrUnsupportedFormat)},
		llm.Step{Text: text},
	)
	p := buildPipeline(t, backend)

	res := p.Process(context.Background(), "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.False(t, res.Errored())
	assert.Equal(t, core.ModeText, res.Outcome.Mode)
	assert.Equal(t, widgetCopy, res.Output.PrimaryText)
	assert.Equal(t, 3, res.ShapeStats.AI)
	calls := backend.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, core.ModeJSON, calls[0].Mode)
	assert.Equal(t, core.ModeText, calls[1].Mode)
}

func TestProcess_GarbageResponse(t *testing.T) {
	backend := llm.NewMockBackend(llm.Step{Text: "!!!\n???\n..."})
	p := buildPipeline(t, backend)

	res := p.Process(context.Background(), "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.False(t, res.Errored(), "an unparseable reply still counts as generated")
	assert.Equal(t, 0, res.ShapeStats.AI)
}

func TestProcess_CancelledContext(t *testing.T) {
	backend := llm.NewMockBackend(llm.Step{Text: widgetJSON(t)})
	p := buildPipeline(t, backend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Process(ctx, "Widget X")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.True(t, res.Errored())
	assert.Empty(t, backend.Calls())
}

func TestFallback(t *testing.T) {
	p := buildPipeline(t, llm.NewDryRunBackend(5))

	res := p.Fallback("Widget X", "panic: boom")

	requireOutput(t, core.DefaultPolicy(), res)
	assert.True(t, res.Errored())
	assert.Equal(t, "panic: boom", res.Outcome.Detail)
}

func TestBuilder(t *testing.T) {
	t.Run("requires backend", func(t *testing.T) {
		_, err := NewBuilder().Build()
		assert.ErrorContains(t, err, "backend is required")
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		policy := core.DefaultPolicy()
		policy.RequiredQuota = 0
		_, err := NewBuilder().WithBackend(llm.NewDryRunBackend(5)).WithPolicy(policy).Build()
		assert.ErrorContains(t, err, "required_quota")
	})

	t.Run("custom policy", func(t *testing.T) {
		policy := core.DefaultPolicy()
		policy.RequiredQuota = 6
		policy.TargetLenMin, policy.TargetLenMax = 50, 90
		p, err := NewBuilder().WithBackend(llm.NewDryRunBackend(6)).WithPolicy(policy).Build()
		require.NoError(t, err)

		res := p.Process(context.Background(), "Widget X")
		requireOutput(t, policy, res)
	})
}
