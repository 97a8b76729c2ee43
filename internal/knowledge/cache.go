package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"medchat-engine/internal/common/database"
	"medchat-engine/internal/common/metrics"
	"medchat-engine/internal/models"
)

const cacheKeyPrefix = "chat:kb:"

// Versioned is implemented by retrievers whose corpus changes on reload.
type Versioned interface {
	Version() uint64
}

// CachedRetriever serves repeated queries from redis. Redis is an
// optimisation only: any redis failure falls through to the wrapped
// retriever. When next is Versioned, keys carry the corpus version so a
// retrieval that started before a reload can never be served after it.
type CachedRetriever struct {
	next   Retriever
	redis  *database.RedisClient
	ttl    time.Duration
	logger Logger
}

func NewCachedRetriever(next Retriever, redis *database.RedisClient, ttl time.Duration, log Logger) *CachedRetriever {
	return &CachedRetriever{
		next:  next,
		redis: redis,
		ttl:   ttl,
		logger: log.With(map[string]interface{}{
			"component": Name,
			"cache":     "redis",
		}),
	}
}

func CacheKey(version uint64, q models.RetrievalQuery) string {
	text := strings.Join(models.Tokenize(q.Text), " ")
	return fmt.Sprintf("%sv%d:%s|%s|%s|%s|%s|%s|%d|%d", cacheKeyPrefix, version,
		q.Category, q.Service, q.Provider, q.Tier, q.Language, text, q.MaxResults, q.MaxChars)
}

func (c *CachedRetriever) version() uint64 {
	if v, ok := c.next.(Versioned); ok {
		return v.Version()
	}
	return 0
}

func (c *CachedRetriever) Retrieve(ctx context.Context, q models.RetrievalQuery) ([]models.KnowledgeChunk, error) {
	key := CacheKey(c.version(), q)

	val, err := c.redis.Get(ctx, key)
	switch {
	case err == nil:
		var chunks []models.KnowledgeChunk
		if jsonErr := json.Unmarshal([]byte(val), &chunks); jsonErr == nil {
			metrics.KnowledgeRetrievals.WithLabelValues("redis", "cache_hit").Inc()
			return chunks, nil
		}
		c.logger.Warn("discarding unreadable cache entry", map[string]interface{}{
			"key": key,
		})
	case !errors.Is(err, database.ErrCacheMiss):
		c.logger.Warn("cache read failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	chunks, err := c.next.Retrieve(ctx, q)
	if err != nil || len(chunks) == 0 {
		return chunks, err
	}

	data, err := json.Marshal(chunks)
	if err == nil {
		err = c.redis.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return chunks, nil
}

// Invalidate drops every cached retrieval, used after a corpus reload.
func (c *CachedRetriever) Invalidate(ctx context.Context) (int, error) {
	n, err := c.redis.DelPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidate retrieval cache: %w", err)
	}
	c.logger.Info("retrieval cache invalidated", map[string]interface{}{
		"keys": n,
	})
	return n, nil
}
