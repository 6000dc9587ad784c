package llm

import (
	"context"
	"fmt"
	"time"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds the automatic retry of model calls.
type RetryConfig struct {
	MaxRetries      int // extra attempts after the first one
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// RetryingProvider retries transient failures of the wrapped provider with exponential
// backoff. Exhausted or permanent failures surface as apperror ModelCallFailed.
type RetryingProvider struct {
	next   LLMProvider
	cfg    RetryConfig
	logger logger.ILogger
}

// Ensure RetryingProvider implements LLMProvider
var _ LLMProvider = &RetryingProvider{}

func WithRetry(next LLMProvider, cfg RetryConfig, log logger.ILogger) *RetryingProvider {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RetryingProvider{next: next, cfg: cfg, logger: log}
}

func (p *RetryingProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	return p.do(ctx, "chat", func() (string, error) {
		return p.next.Chat(ctx, history, options...)
	})
}

func (p *RetryingProvider) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	return p.do(ctx, "generate", func() (string, error) {
		return p.next.Generate(ctx, prompt, options...)
	})
}

func (p *RetryingProvider) do(ctx context.Context, op string, call func() (string, error)) (string, error) {
	b := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		b.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		b.MaxInterval = p.cfg.MaxInterval
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		res, err := call()
		if err == nil {
			return res, nil
		}
		if !IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		p.logger.Warn("LLMRetry", "Model call failed", map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		})
		return "", err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.MaxRetries+1)),
	)
	if err != nil {
		return "", apperror.ModelCallFailed(fmt.Sprintf("%s failed after %d attempt(s)", op, attempt), err)
	}
	return out, nil
}
