package factory

import (
	"fmt"
	"strings"
	"time"

	"repochat-be/internal/config"
	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/embedding"
	"repochat-be/pkg/embedding/jina"

	"github.com/redis/go-redis/v9"
)

// NewEmbeddingProvider builds the configured backend behind the embedding cache.
// rdb may be nil.
func NewEmbeddingProvider(cfg config.AIConfig, keys config.APIKeys, ttl time.Duration, rdb *redis.Client, log logger.ILogger) (embedding.EmbeddingProvider, error) {
	var base embedding.EmbeddingProvider

	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "huggingface":
		base = embedding.NewHuggingFaceProvider(keys.HuggingFace, "", cfg.EmbeddingModel)
	case "openai":
		if keys.OpenAI == "" {
			return nil, fmt.Errorf("openai embeddings require OPENAI_API_KEY")
		}
		base = embedding.NewOpenAIProvider(keys.OpenAI, "", cfg.EmbeddingModel)
	case "ollama":
		base = embedding.NewOllamaProvider(cfg.OllamaBaseURL, cfg.EmbeddingModel)
	case "jina":
		if keys.Jina == "" {
			return nil, fmt.Errorf("jina embeddings require JINA_API_KEY")
		}
		base = jina.NewJinaProvider(keys.Jina, cfg.EmbeddingModel)
	case "gemini":
		if keys.Gemini == "" {
			return nil, fmt.Errorf("gemini embeddings require GEMINI_API_KEY")
		}
		base = embedding.NewGeminiProvider(keys.Gemini, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbeddingProvider)
	}

	return embedding.NewCachedProvider(base, cfg.EmbeddingProvider+"/"+cfg.EmbeddingModel, rdb, ttl, log), nil
}
