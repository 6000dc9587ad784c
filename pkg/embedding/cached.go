package embedding

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"repochat-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// CachedProvider memoizes embeddings by (model, task, text). Redis is used when
// configured so several instances share the work; otherwise a local go-cache.
// Cache failures never fail the call.
type CachedProvider struct {
	next   EmbeddingProvider
	model  string
	rdb    *redis.Client
	local  *cache.Cache
	ttl    time.Duration
	logger logger.ILogger
}

var _ EmbeddingProvider = &CachedProvider{}

func NewCachedProvider(next EmbeddingProvider, model string, rdb *redis.Client, ttl time.Duration, log logger.ILogger) *CachedProvider {
	return &CachedProvider{
		next:   next,
		model:  model,
		rdb:    rdb,
		local:  cache.New(ttl, 10*time.Minute),
		ttl:    ttl,
		logger: log,
	}
}

func (c *CachedProvider) key(text, taskType string) string {
	sum := blake2b.Sum256([]byte(c.model + "\x00" + taskType + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	key := c.key(text, taskType)

	if values, ok := c.lookup(ctx, key); ok {
		return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}, nil
	}

	res, err := c.next.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, res.Embedding.Values)
	return res, nil
}

func (c *CachedProvider) lookup(ctx context.Context, key string) ([]float32, bool) {
	if c.rdb == nil {
		if v, found := c.local.Get(key); found {
			return v.([]float32), true
		}
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("EmbeddingCache", "Redis lookup failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, false
	}

	var values []float32
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false
	}
	return values, true
}

func (c *CachedProvider) store(ctx context.Context, key string, values []float32) {
	if c.rdb == nil {
		c.local.Set(key, values, cache.DefaultExpiration)
		return
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("EmbeddingCache", "Redis store failed", map[string]interface{}{"error": err.Error()})
	}
}
