package config

import (
	"altwriter/internal/core"
	"altwriter/internal/knowledge"
	"altwriter/internal/llm"
	"altwriter/internal/store"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names accepted in llm.provider
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	LLM       LLM       `mapstructure:"llm"`
	Retry     Retry     `mapstructure:"retry"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Knowledge Knowledge `mapstructure:"knowledge"`
	Policy    Policy    `mapstructure:"policy"`
	Input     Input     `mapstructure:"input"`
	Output    Output    `mapstructure:"output"`
}

// App holds general application configuration
type App struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// LLM holds generation backend configuration
type LLM struct {
	Provider        string       `mapstructure:"provider"`
	Model           string       `mapstructure:"model"` // Overrides the provider model when set
	Temperature     float64      `mapstructure:"temperature"`
	MaxOutputTokens int          `mapstructure:"max_output_tokens"`
	ResponseMode    string       `mapstructure:"response_mode"`
	Timeout         string       `mapstructure:"timeout"` // Per backend call
	OpenAI          OpenAIConfig `mapstructure:"openai"`
	Gemini          GeminiConfig `mapstructure:"gemini"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// Retry holds the backoff policy of the generation client
type Retry struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	BaseDelay   string `mapstructure:"base_delay"`
	MaxDelay    string `mapstructure:"max_delay"`
}

// Pipeline holds batch execution configuration
type Pipeline struct {
	Concurrency int `mapstructure:"concurrency"`
	Limit       int `mapstructure:"limit"` // 0 processes every entity
}

// Knowledge holds knowledge digest configuration
type Knowledge struct {
	Dir           string `mapstructure:"dir"`
	CategoryCap   int    `mapstructure:"category_cap"`
	SummaryBudget int    `mapstructure:"summary_budget"`
}

// Policy holds the output constraints
type Policy struct {
	TargetLenMin        int      `mapstructure:"target_len_min"`
	TargetLenMax        int      `mapstructure:"target_len_max"`
	GenerationLenMin    int      `mapstructure:"generation_len_min"`
	GenerationLenMax    int      `mapstructure:"generation_len_max"`
	CopyLenMin          int      `mapstructure:"copy_len_min"`
	CopyLenMax          int      `mapstructure:"copy_len_max"`
	RequiredQuota       int      `mapstructure:"required_quota"`
	ForbiddenWords      []string `mapstructure:"forbidden_words"`
	SentenceTerminals   string   `mapstructure:"sentence_terminals"`
	SimilarityThreshold float64  `mapstructure:"similarity_threshold"`
	DiscardBelow        int      `mapstructure:"discard_below"`
	VariationCeiling    int      `mapstructure:"variation_ceiling"`
}

// Input holds entity source configuration
type Input struct {
	Path     string `mapstructure:"path"`
	Column   string `mapstructure:"column"`
	Encoding string `mapstructure:"encoding"`
}

// Output holds output configuration
type Output struct {
	Directory string `mapstructure:"directory"`
	Prefix    string `mapstructure:"prefix"`
	Formats   string `mapstructure:"formats"` // Comma separated: csv, json
	Diff      bool   `mapstructure:"diff"`
}

// Load loads the configuration from the config file, .env, the environment
// and overrides, later sources winning. Overrides use viper keys such as
// "llm.provider" and normally come from command-line flags.
func Load(configFile string, overrides map[string]any) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".altwriter")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	bindEnvironmentVariables(v)
	v.SetEnvPrefix("ALTWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		v.Set(key, value)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	postProcessConfig(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")

	// LLM defaults
	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.temperature", llm.DefaultTemperature)
	v.SetDefault("llm.max_output_tokens", llm.DefaultMaxOutputTokens)
	v.SetDefault("llm.response_mode", string(core.ModeJSON))
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.openai.model", llm.DefaultOpenAIModel)
	v.SetDefault("llm.gemini.model", llm.DefaultGeminiModel)

	// Retry defaults
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "20s")

	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.limit", 0)

	// Knowledge defaults
	opts := knowledge.DefaultOptions()
	v.SetDefault("knowledge.dir", "knowledge")
	v.SetDefault("knowledge.category_cap", opts.DefaultCap)
	v.SetDefault("knowledge.summary_budget", opts.SummaryBudget)

	// Policy defaults
	p := core.DefaultPolicy()
	v.SetDefault("policy.target_len_min", p.TargetLenMin)
	v.SetDefault("policy.target_len_max", p.TargetLenMax)
	v.SetDefault("policy.generation_len_min", p.GenerationLenMin)
	v.SetDefault("policy.generation_len_max", p.GenerationLenMax)
	v.SetDefault("policy.copy_len_min", p.CopyLenMin)
	v.SetDefault("policy.copy_len_max", p.CopyLenMax)
	v.SetDefault("policy.required_quota", p.RequiredQuota)
	v.SetDefault("policy.forbidden_words", []string{})
	v.SetDefault("policy.sentence_terminals", p.SentenceTerminals)
	v.SetDefault("policy.similarity_threshold", p.SimilarityThreshold)
	v.SetDefault("policy.discard_below", p.DiscardBelow)
	v.SetDefault("policy.variation_ceiling", p.VariationCeiling)

	// Input defaults
	v.SetDefault("input.path", "input.csv")
	v.SetDefault("input.column", "商品名")
	v.SetDefault("input.encoding", "auto")

	// Output defaults
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.prefix", "alt")
	v.SetDefault("output.formats", "csv,json")
	v.SetDefault("output.diff", false)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	bindEnvKeys(v, "llm.openai.api_key", []string{
		"OPENAI_API_KEY",
	})

	bindEnvKeys(v, "llm.openai.model", []string{
		"OPENAI_MODEL",
	})

	bindEnvKeys(v, "llm.openai.base_url", []string{
		"OPENAI_BASE_URL",
	})

	bindEnvKeys(v, "llm.temperature", []string{
		"OPENAI_TEMPERATURE",
		"LLM_TEMPERATURE",
	})

	bindEnvKeys(v, "llm.max_output_tokens", []string{
		"OPENAI_MAX_TOKENS",
		"LLM_MAX_TOKENS",
	})

	// Gemini API key - support multiple formats
	bindEnvKeys(v, "llm.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys(v, "llm.gemini.model", []string{
		"GEMINI_MODEL",
	})

	bindEnvKeys(v, "llm.provider", []string{
		"ALTWRITER_PROVIDER",
		"LLM_PROVIDER",
	})

	// General settings
	bindEnvKeys(v, "app.debug", []string{
		"DEBUG",
		"ALTWRITER_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) {
	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	config.Knowledge.Dir = expandPath(config.Knowledge.Dir)
	config.Input.Path = expandPath(config.Input.Path)
	config.Output.Directory = expandPath(config.Output.Directory)
	if config.App.Debug {
		config.App.LogLevel = "debug"
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error

	durations := map[string]string{
		"llm.timeout":      c.LLM.Timeout,
		"retry.base_delay": c.Retry.BaseDelay,
		"retry.max_delay":  c.Retry.MaxDelay,
	}
	for _, key := range []string{"llm.timeout", "retry.base_delay", "retry.max_delay"} {
		if d := durations[key]; d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				errs = append(errs, fmt.Errorf("invalid duration for %s: %s", key, d))
			}
		}
	}

	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OpenAI API key is required. Set OPENAI_API_KEY environment variable or llm.openai.api_key in config file"))
		}
	case ProviderGemini:
		if c.LLM.Gemini.APIKey == "" {
			errs = append(errs, errors.New("Gemini API key is required. Set GEMINI_API_KEY environment variable or llm.gemini.api_key in config file"))
		}
	case ProviderMock:
		// No credentials needed
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider: %s. Supported: openai, gemini, mock", c.LLM.Provider))
	}

	switch strings.ToLower(c.LLM.ResponseMode) {
	case string(core.ModeJSON), string(core.ModeText):
	default:
		errs = append(errs, fmt.Errorf("llm.response_mode must be json or text, got %q", c.LLM.ResponseMode))
	}
	if c.LLM.MaxOutputTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_output_tokens must be positive, got %d", c.LLM.MaxOutputTokens))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be between 0 and 2, got %.2f", c.LLM.Temperature))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency))
	}
	if c.Pipeline.Limit < 0 {
		errs = append(errs, fmt.Errorf("pipeline.limit must not be negative, got %d", c.Pipeline.Limit))
	}

	switch strings.ToLower(c.Input.Encoding) {
	case "", "auto", "utf-8", "utf8", "shift_jis", "shift-jis", "sjis", "cp932":
	default:
		errs = append(errs, fmt.Errorf("input.encoding must be auto, utf-8 or shift_jis, got %q", c.Input.Encoding))
	}
	if len(c.OutputFormats()) == 0 {
		errs = append(errs, fmt.Errorf("output.formats has no known format: %q", c.Output.Formats))
	}

	if err := c.ToPolicy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n%w", errors.Join(errs...))
	}
	return nil
}

// ToPolicy converts the policy section into the immutable core policy
func (c *Config) ToPolicy() core.Policy {
	p := c.Policy
	return core.Policy{
		TargetLenMin:        p.TargetLenMin,
		TargetLenMax:        p.TargetLenMax,
		GenerationLenMin:    p.GenerationLenMin,
		GenerationLenMax:    p.GenerationLenMax,
		CopyLenMin:          p.CopyLenMin,
		CopyLenMax:          p.CopyLenMax,
		RequiredQuota:       p.RequiredQuota,
		ForbiddenWords:      append([]string(nil), p.ForbiddenWords...),
		SentenceTerminals:   p.SentenceTerminals,
		SimilarityThreshold: p.SimilarityThreshold,
		DiscardBelow:        p.DiscardBelow,
		VariationCeiling:    p.VariationCeiling,
	}
}

// RetryPolicy returns the backoff policy for the generation client
func (c *Config) RetryPolicy() llm.RetryPolicy {
	r := llm.DefaultRetryPolicy()
	r.MaxAttempts = c.Retry.MaxAttempts
	if d, err := time.ParseDuration(c.Retry.BaseDelay); err == nil {
		r.BaseDelay = d
	}
	if d, err := time.ParseDuration(c.Retry.MaxDelay); err == nil {
		r.MaxDelay = d
	}
	if d, err := time.ParseDuration(c.LLM.Timeout); err == nil {
		r.CallTimeout = d
	}
	return r
}

// ModelParams returns the generation parameters sent with every call
func (c *Config) ModelParams() llm.ModelParams {
	return llm.ModelParams{
		Model:           c.LLM.Model,
		MaxOutputTokens: c.LLM.MaxOutputTokens,
		Temperature:     c.LLM.Temperature,
		Mode:            core.ParseResponseMode(c.LLM.ResponseMode),
	}
}

// DigestOptions returns the knowledge digest size bounds
func (c *Config) DigestOptions() knowledge.Options {
	opts := knowledge.DefaultOptions()
	if c.Knowledge.CategoryCap > 0 {
		for cat, n := range opts.Caps {
			if n > c.Knowledge.CategoryCap {
				opts.Caps[cat] = c.Knowledge.CategoryCap
			}
		}
		opts.DefaultCap = c.Knowledge.CategoryCap
	}
	if c.Knowledge.SummaryBudget > 0 {
		opts.SummaryBudget = c.Knowledge.SummaryBudget
	}
	return opts
}

// OutputFormats returns the configured output formats
func (c *Config) OutputFormats() []store.Format {
	return store.ParseFormats(c.Output.Formats)
}

// ProviderModel returns the model the selected provider will use
func (c *Config) ProviderModel() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		return c.LLM.Gemini.Model
	case ProviderOpenAI:
		return c.LLM.OpenAI.Model
	default:
		return ProviderMock
	}
}
