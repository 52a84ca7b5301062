package llm

import (
	"altwriter/internal/core"
	"altwriter/internal/logger"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy bounds how hard Invoke tries before giving up on an entity.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns three attempts with 2s, 4s backoff and a 60s per-call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    20 * time.Second,
		CallTimeout: 60 * time.Second,
	}
}

// Backoff returns the pause before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Client wraps a Backend with retry, backoff and response-format fallback.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	backend Backend
	retry   RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// NewClient creates a retrying client around backend.
func NewClient(backend Backend, retry RetryPolicy) *Client {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		backend: backend,
		retry:   retry,
		sleep:   sleepContext,
		log:     logger.For("llm"),
	}
}

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend { return c.backend }

// Invoke runs the request until it yields text or the attempt budget is spent.
// Apart from Success it only ever returns Fatal; the caller decides what a
// failed entity produces.
func (c *Client) Invoke(ctx context.Context, req Request) Outcome {
	mode := req.Params.Mode
	if mode == "" {
		mode = core.ModeJSON
	}
	if _, ok := req.Prompts[mode]; !ok {
		mode = core.ModeText
	}

	var last error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return c.fatal(req, attempt-1, mode, err)
		}

		p, ok := req.Prompts[mode]
		if !ok {
			return c.fatal(req, attempt-1, mode, fmt.Errorf("%w: no prompt for mode %s", ErrFatal, mode))
		}
		params := req.Params
		params.Mode = mode

		text, err := c.call(ctx, p.System, p.User, params)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			c.log.Debug().Str("entity", req.EntityID).Int("attempt", attempt).Str("mode", string(mode)).Msg("generation succeeded")
			return Outcome{Kind: Success, Text: text, Attempts: attempt, Mode: mode}
		}
		last = err

		// The mode switch is free: the rejected call never reached generation.
		if errors.Is(err, ErrUnsupportedFormat) && mode != core.ModeText {
			if _, ok := req.Prompts[core.ModeText]; ok {
				c.log.Warn().Str("entity", req.EntityID).Err(err).Msg("response format rejected, switching to plain text")
				mode = core.ModeText
				attempt--
				continue
			}
		}

		kind := Classify(err)
		if kind == Fatal || ctx.Err() != nil {
			return c.fatal(req, attempt, mode, err)
		}
		if attempt == c.retry.MaxAttempts {
			break
		}
		if kind == Transient {
			delay := c.retry.Backoff(attempt)
			c.log.Warn().Str("entity", req.EntityID).Int("attempt", attempt).Dur("backoff", delay).Err(err).Msg("transient failure, retrying")
			if serr := c.sleep(ctx, delay); serr != nil {
				return c.fatal(req, attempt, mode, serr)
			}
			continue
		}
		c.log.Debug().Str("entity", req.EntityID).Int("attempt", attempt).Msg("empty response, retrying")
	}
	return c.fatal(req, c.retry.MaxAttempts, mode, fmt.Errorf("retries exhausted: %w", last))
}

// call applies the per-call timeout. The timeout bounds one backend call,
// never the whole entity.
func (c *Client) call(ctx context.Context, system, user string, params ModelParams) (string, error) {
	if c.retry.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.retry.CallTimeout)
		defer cancel()
	}
	return c.backend.Generate(ctx, system, user, params)
}

func (c *Client) fatal(req Request, attempts int, mode core.ResponseMode, err error) Outcome {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	c.log.Error().Str("entity", req.EntityID).Int("attempts", attempts).Err(err).Msg("generation failed")
	return Outcome{Kind: Fatal, Detail: detail, Attempts: attempts, Mode: mode}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
