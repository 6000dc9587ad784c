package factory

import (
	"fmt"
	"strings"

	"repochat-be/internal/config"
	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/llm"
	"repochat-be/pkg/llm/huggingface"
	"repochat-be/pkg/llm/ollama"
	"repochat-be/pkg/llm/openai"
)

// NewLLMProvider builds the configured backend and wraps it with bounded retry
// and reasoning-block filtering.
func NewLLMProvider(cfg config.AIConfig, keys config.APIKeys, log logger.ILogger) (llm.LLMProvider, error) {
	base, err := newBaseProvider(cfg, keys)
	if err != nil {
		return nil, err
	}

	retryCfg := llm.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	return llm.WithReasoningFormat(llm.WithRetry(base, retryCfg, log), cfg.ReasoningFormat, log), nil
}

func newBaseProvider(cfg config.AIConfig, keys config.APIKeys) (llm.LLMProvider, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "groq":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = openai.GroqBaseURL
		}
		if keys.LLM == "" {
			return nil, fmt.Errorf("groq provider requires LLM_API_KEY or GROQ_API_KEY")
		}
		return openai.NewOpenAIProvider("groq", keys.LLM, baseURL, cfg.LLMModel, cfg.Temperature), nil
	case "openai":
		key := keys.LLM
		if key == "" {
			key = keys.OpenAI
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires LLM_API_KEY or OPENAI_API_KEY")
		}
		return openai.NewOpenAIProvider("openai", key, cfg.LLMBaseURL, cfg.LLMModel, cfg.Temperature), nil
	case "ollama":
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = cfg.OllamaBaseURL
		}
		return ollama.NewOllamaProvider(baseURL, cfg.LLMModel, cfg.Temperature), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(keys.HuggingFace, cfg.LLMBaseURL, cfg.LLMModel, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
