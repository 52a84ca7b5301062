package llm

import (
	"altwriter/internal/core"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Step is one scripted backend reply: either Text or Err.
type Step struct {
	Text string
	Err  error
}

// MockBackend replays scripted steps and, once they run out, either repeats
// the last step or produces deterministic dry-run copy for the product.
type MockBackend struct {
	mu    sync.Mutex
	steps []Step
	calls []ModelParams
	quota int
}

// NewMockBackend returns a backend that replays steps in order.
func NewMockBackend(steps ...Step) *MockBackend {
	return &MockBackend{steps: steps}
}

// NewDryRunBackend returns a backend that writes quota plausible lines per
// product without touching the network.
func NewDryRunBackend(quota int) *MockBackend {
	return &MockBackend{quota: quota}
}

func (m *MockBackend) Name() string { return "mock" }

// Calls returns the params of every call made so far.
func (m *MockBackend) Calls() []ModelParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ModelParams, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockBackend) Generate(ctx context.Context, system, user string, params ModelParams) (string, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, params)
	var step *Step
	if len(m.steps) > 0 {
		if idx >= len(m.steps) {
			idx = len(m.steps) - 1
		}
		s := m.steps[idx]
		step = &s
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if step != nil {
		return step.Text, step.Err
	}
	return dryRun(productName(user), m.quota, params.Mode), nil
}

func productName(user string) string {
	for _, line := range strings.Split(user, "\n") {
		if name, ok := strings.CutPrefix(line, "商品名:"); ok {
			return strings.TrimSpace(name)
		}
	}
	return "この商品"
}

var dryRunClauses = []string{
	"毎日の暮らしに自然となじむ使い心地で、はじめての方でも迷わず扱えるよう細部まで丁寧に仕上げています。",
	"素材選びからこだわり、長く使っても品質が落ちにくいつくりなので、安心して日常づかいを続けられます。",
	"コンパクトにまとまるデザインで置き場所を選ばず、忙しい朝や限られたスペースでもすっきり使えます。",
	"贈り物にも選びやすい落ち着いた仕上がりで、家族や友人へのちょっとしたプレゼントにも喜ばれます。",
	"お手入れが簡単で清潔に保ちやすく、毎日使うものだからこそ気になる手間をしっかり減らしてくれます。",
	"季節を問わず活躍する汎用性の高さが魅力で、自宅でも外出先でも気軽に取り入れられる一品です。",
}

func dryRun(name string, quota int, mode core.ResponseMode) string {
	if quota <= 0 {
		quota = 5
	}
	alts := make([]string, 0, quota)
	for i := 0; i < quota; i++ {
		alts = append(alts, fmt.Sprintf("%sは、%s", name, dryRunClauses[i%len(dryRunClauses)]))
	}
	copyText := fmt.Sprintf("%sで毎日をもっと心地よく、長く愛せる定番の使い心地を。", name)
	if mode == core.ModeJSON {
		b, _ := json.Marshal(map[string]any{"copy": copyText, "alts": alts})
		return string(b)
	}
	return "COPY: " + copyText + "\n" + strings.Join(alts, "\n")
}
