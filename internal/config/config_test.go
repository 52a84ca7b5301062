package config

import (
	"altwriter/internal/core"
	"altwriter/internal/store"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "OPENAI_TEMPERATURE", "LLM_TEMPERATURE",
	"OPENAI_MAX_TOKENS", "LLM_MAX_TOKENS", "GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY",
	"GOOGLE_AI_API_KEY", "GEMINI_MODEL", "ALTWRITER_PROVIDER", "LLM_PROVIDER", "DEBUG", "ALTWRITER_DEBUG",
}

// cleanEnv isolates a test from the caller's environment and home config
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "altwriter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func mock() map[string]any {
	return map[string]any{"llm.provider": ProviderMock}
}

func TestLoadDefaults(t *testing.T) {
	cleanEnv(t)

	cfg, err := Load("", mock())
	require.NoError(t, err)

	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, "商品名", cfg.Input.Column)
	assert.Equal(t, []store.Format{store.FormatCSV, store.FormatJSON}, cfg.OutputFormats())
	assert.Equal(t, core.DefaultPolicy(), cfg.ToPolicy())

	retry := cfg.RetryPolicy()
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, retry.BaseDelay)
	assert.Equal(t, 20*time.Second, retry.MaxDelay)
	assert.Equal(t, 60*time.Second, retry.CallTimeout)

	params := cfg.ModelParams()
	assert.Equal(t, core.ModeJSON, params.Mode)
	assert.Equal(t, 1500, params.MaxOutputTokens)
	assert.InDelta(t, 0.5, params.Temperature, 1e-9)
}

func TestLoadConfigFile(t *testing.T) {
	cleanEnv(t)
	path := writeConfig(t, `
llm:
  provider: gemini
  response_mode: text
  timeout: 15s
  gemini:
    api_key: file-key
    model: gemini-test
retry:
  max_attempts: 5
pipeline:
  concurrency: 8
knowledge:
  category_cap: 5
  summary_budget: 300
policy:
  required_quota: 10
  target_len_min: 60
  target_len_max: 90
  forbidden_words: ["激安", "送料込み"]
output:
  formats: json
  diff: true
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "file-key", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, "gemini-test", cfg.ProviderModel())
	assert.Equal(t, core.ModeText, cfg.ModelParams().Mode)
	assert.Equal(t, 15*time.Second, cfg.RetryPolicy().CallTimeout)
	assert.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, []store.Format{store.FormatJSON}, cfg.OutputFormats())
	assert.True(t, cfg.Output.Diff)

	policy := cfg.ToPolicy()
	assert.Equal(t, 10, policy.RequiredQuota)
	assert.Equal(t, 60, policy.TargetLenMin)
	assert.Equal(t, 90, policy.TargetLenMax)
	assert.Equal(t, []string{"激安", "送料込み"}, policy.ForbiddenWords)
	assert.Equal(t, core.DefaultPolicy().CopyLenMax, policy.CopyLenMax)

	opts := cfg.DigestOptions()
	assert.Equal(t, 300, opts.SummaryBudget)
	assert.Equal(t, 5, opts.DefaultCap)
	for cat, n := range opts.Caps {
		assert.LessOrEqual(t, n, 5, "cap for %s", cat)
	}
}

func TestLoadEnvironmentAliases(t *testing.T) {
	cleanEnv(t)
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GOOGLE_AI_API_KEY", "alias-key")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")
	t.Setenv("OPENAI_MAX_TOKENS", "900")
	t.Setenv("DEBUG", "true")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "alias-key", cfg.LLM.Gemini.APIKey)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 900, cfg.LLM.MaxOutputTokens)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadFirstAliasWins(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ALTWRITER_PROVIDER", "mock")
	t.Setenv("LLM_PROVIDER", "gemini")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
}

func TestOverridesBeatEnvironment(t *testing.T) {
	cleanEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")

	cfg, err := Load("", map[string]any{"llm.provider": "mock", "policy.required_quota": 5})
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.ToPolicy().RequiredQuota)
}

func TestValidateCollectsEveryError(t *testing.T) {
	cleanEnv(t)
	path := writeConfig(t, `
llm:
  provider: openai
  timeout: soon
  response_mode: xml
pipeline:
  concurrency: 0
input:
  encoding: latin1
output:
  formats: xlsx
policy:
  required_quota: 0
`)

	_, err := Load(path, nil)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"OpenAI API key is required",
		"invalid duration for llm.timeout: soon",
		"llm.response_mode must be json or text",
		"pipeline.concurrency must be at least 1",
		"input.encoding must be auto",
		"output.formats has no known format",
		"required_quota must be between 1 and 100",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateUnknownProvider(t *testing.T) {
	cleanEnv(t)
	_, err := Load("", map[string]any{"llm.provider": "claude"})
	assert.ErrorContains(t, err, "unknown llm provider: claude")
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ALT_DATA", "/data")

	assert.Equal(t, filepath.Join(home, "knowledge"), expandPath("~/knowledge"))
	assert.Equal(t, "/data/out", expandPath("$ALT_DATA/out"))
	assert.Equal(t, "", expandPath(""))
}
