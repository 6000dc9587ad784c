package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"repochat-be/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI itself, Groq, vLLM, LM Studio...).
type OpenAIProvider struct {
	client   *goopenai.Client
	name     string
	defaults llm.Options
}

// Ensure OpenAIProvider implements LLMProvider
var _ llm.LLMProvider = &OpenAIProvider{}

// NewOpenAIProvider builds a client for baseURL. An empty baseURL keeps the go-openai default.
func NewOpenAIProvider(name, apiKey, baseURL, model string, temperature float64) *OpenAIProvider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		client:   goopenai.NewClientWithConfig(cfg),
		name:     name,
		defaults: llm.Options{Model: model, Temperature: &temperature},
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.ApplyOptions(p.defaults, opts...)

	messages := make([]goopenai.ChatCompletionMessage, len(history))
	for i, msg := range history {
		messages[i] = goopenai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}

	req := goopenai.ChatCompletionRequest{
		Model:    options.Model,
		Messages: messages,
	}
	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens > 0 {
		req.MaxCompletionTokens = options.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// classify turns go-openai HTTP failures into llm.StatusError so the retry
// decorator can tell throttling apart from bad requests.
func (p *OpenAIProvider) classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%w: %v", &llm.StatusError{
			Provider:   p.name,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		}, err)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Errorf("%w: %v", &llm.StatusError{
			Provider:   p.name,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       string(reqErr.Body),
		}, err)
	}
	return fmt.Errorf("%s request failed: %w", p.name, err)
}
