package llm

import (
	"altwriter/internal/core"
	"altwriter/internal/prompt"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

const (
	// DefaultOpenAIModel is the default chat model for the OpenAI-compatible backend.
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultGeminiModel is the default Gemini model.
	DefaultGeminiModel = "gemini-flash-lite-latest"
	// DefaultMaxOutputTokens bounds a single completion.
	DefaultMaxOutputTokens = 1500
	// DefaultTemperature is the sampling temperature used when none is configured.
	DefaultTemperature = 0.5
)

var (
	// ErrEmptyResponse is returned by a backend that answered with no text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrTransient marks failures worth retrying after a pause (rate limits, timeouts, 5xx).
	ErrTransient = errors.New("transient backend failure")
	// ErrUnsupportedFormat marks a rejection of the requested response format.
	ErrUnsupportedFormat = errors.New("response format not supported")
	// ErrFatal marks failures that no retry can fix (auth, unknown model, bad request).
	ErrFatal = errors.New("fatal backend failure")
)

// Backend is one text-generation provider.
type Backend interface {
	Name() string
	Generate(ctx context.Context, system, user string, params ModelParams) (string, error)
}

// ModelParams are the per-call knobs handed to a backend.
type ModelParams struct {
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Mode            core.ResponseMode
}

// Request is a single entity's generation request. Prompts carries one prompt
// per response mode so the client can fall back without recomposing.
type Request struct {
	EntityID string
	Prompts  map[core.ResponseMode]prompt.Prompt
	Params   ModelParams
}

// OutcomeKind is the terminal classification of an Invoke call.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Empty
	Transient
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Empty:
		return "empty"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is what Invoke reports back. Text is set only on Success.
type Outcome struct {
	Kind     OutcomeKind
	Text     string
	Detail   string
	Attempts int
	Mode     core.ResponseMode
}

// OK reports whether the outcome carries usable text.
func (o Outcome) OK() bool { return o.Kind == Success && strings.TrimSpace(o.Text) != "" }

// Classify maps a backend error onto a retry decision.
func Classify(err error) OutcomeKind {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrEmptyResponse):
		return Empty
	case errors.Is(err, ErrFatal), errors.Is(err, context.Canceled):
		return Fatal
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	// Unknown failures get the benefit of the doubt; the attempt cap bounds them.
	return Transient
}

// classifyStatus wraps an HTTP status from a provider SDK into one of the sentinels.
func classifyStatus(status int, message string, err error) error {
	lower := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return fmt.Errorf("%w: status %d: %v", ErrTransient, status, err)
	case status == http.StatusBadRequest && mentionsFormat(lower):
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	case status >= 400:
		return fmt.Errorf("%w: status %d: %v", ErrFatal, status, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
}

func mentionsFormat(lower string) bool {
	for _, k := range []string{"response_format", "json_object", "response_mime_type", "responsemimetype"} {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
