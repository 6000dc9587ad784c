package llm

import (
	"context"
	"regexp"
	"strings"

	"repochat-be/internal/pkg/logger"
)

// Reasoning output modes. Raw passes replies through untouched, parsed strips the
// reasoning and logs it at debug level, hidden strips it without a trace.
const (
	ReasoningRaw    = "raw"
	ReasoningParsed = "parsed"
	ReasoningHidden = "hidden"
)

var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoning removes <think>…</think> sections emitted by reasoning models.
func StripReasoning(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

// ExtractReasoning returns the contents of every <think> section, trimmed and joined by blank lines.
func ExtractReasoning(text string) string {
	blocks := thinkBlock.FindAllString(text, -1)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		inner := strings.TrimSpace(b[len("<think>") : len(b)-len("</think>")])
		if inner != "" {
			parts = append(parts, inner)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ReasoningFilter strips reasoning blocks from every response.
type ReasoningFilter struct {
	next   LLMProvider
	mode   string
	logger logger.ILogger
}

var _ LLMProvider = &ReasoningFilter{}

// WithReasoningFormat wraps next according to mode. Unknown modes behave as parsed.
func WithReasoningFormat(next LLMProvider, mode string, log logger.ILogger) LLMProvider {
	if mode == ReasoningRaw {
		return next
	}
	if mode != ReasoningHidden {
		mode = ReasoningParsed
	}
	return &ReasoningFilter{next: next, mode: mode, logger: log}
}

func (f *ReasoningFilter) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	out, err := f.next.Chat(ctx, history, options...)
	if err != nil {
		return "", err
	}
	return f.filter(out), nil
}

func (f *ReasoningFilter) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	out, err := f.next.Generate(ctx, prompt, options...)
	if err != nil {
		return "", err
	}
	return f.filter(out), nil
}

func (f *ReasoningFilter) filter(out string) string {
	if f.mode == ReasoningParsed && f.logger != nil {
		if reasoning := ExtractReasoning(out); reasoning != "" {
			f.logger.Debug("LLM", "Model reasoning", map[string]interface{}{"reasoning": reasoning})
		}
	}
	return StripReasoning(out)
}
