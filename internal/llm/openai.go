package llm

import (
	"altwriter/internal/core"
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAISettings configures the OpenAI-compatible chat completions backend.
type OpenAISettings struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIBackend implements Backend using the official openai-go SDK.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend builds the backend. SDK-level retries are disabled so the
// retry budget lives in one place.
func NewOpenAIBackend(cfg OpenAISettings) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set OPENAI_API_KEY or llm.openai.api_key")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIBackend{client: openai.NewClient(opts...), model: model}, nil
}

func (o *OpenAIBackend) Name() string { return "openai:" + o.model }

func (o *OpenAIBackend) Generate(ctx context.Context, system, user string, params ModelParams) (string, error) {
	model := params.Model
	if model == "" {
		model = o.model
	}
	req := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if params.MaxOutputTokens > 0 {
		req.MaxCompletionTokens = openai.Int(int64(params.MaxOutputTokens))
	}
	// Zero is a valid temperature, so it is always sent
	req.Temperature = openai.Float(params.Temperature)
	if params.Mode == core.ModeJSON {
		req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return content, nil
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Message+" "+apiErr.Error(), err)
	}
	return err
}
