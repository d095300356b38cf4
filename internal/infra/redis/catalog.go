package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quiz-engine-service/internal/domain"
)

const (
	usageKey   = "catalog:usage"
	retiredKey = "catalog:retired"
)

// CatalogSource is the durable catalog behind the cache (memory or Postgres).
type CatalogSource interface {
	FindTopic(ctx context.Context, topicID string) (domain.Topic, error)
	FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error)
	IncrementUsage(ctx context.Context, questionIDs []string) error
	AddTopic(ctx context.Context, topic domain.Topic) error
	AddQuestion(ctx context.Context, q domain.Question) error
	DeactivateQuestion(ctx context.Context, questionID string) error
}

// Catalog caches each topic's active question pool in Redis and falls back to the source on a miss.
// Pools are stored as JSON:   SET catalog:pool:{topicID} [...]
// Usage counters live in:     HSET catalog:usage {questionID} {count}
// Retired question ids:       SADD catalog:retired {questionID}
// Counters and retirements are applied on every read, so a cached pool never
// hides recent serves and never serves a retired question.
type Catalog struct {
	client *redis.Client
	source CatalogSource
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalog(client *redis.Client, source CatalogSource, ttl time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		client: client,
		source: source,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Catalog) FindTopic(ctx context.Context, topicID string) (domain.Topic, error) {
	return c.source.FindTopic(ctx, topicID)
}

// FindActiveQuestions returns the cached pool filtered by difficulty, without
// retired questions and with live usage counts. When Redis cannot answer, the
// source is read directly.
func (c *Catalog) FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error) {
	pool, err := c.pool(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if len(pool) > 0 {
		pool, err = c.live(ctx, pool)
		if err != nil {
			c.logger.Warn("redis catalog unavailable, reading source", zap.String("topic_id", topicID), zap.Error(err))
			pool, err = c.source.FindActiveQuestions(ctx, topicID, nil)
			if err != nil {
				return nil, err
			}
		}
	}
	out := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if difficulty != nil && q.Difficulty != *difficulty {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// IncrementUsage bumps the durable counters, then mirrors them into Redis in one MULTI/EXEC.
// A failed mirror is logged; the durable counters stay authoritative.
func (c *Catalog) IncrementUsage(ctx context.Context, questionIDs []string) error {
	if err := c.source.IncrementUsage(ctx, questionIDs); err != nil {
		return err
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range questionIDs {
			pipe.HIncrBy(ctx, usageKey, id, 1)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("usage counters not mirrored", zap.Strings("question_ids", questionIDs), zap.Error(err))
	}
	return nil
}

// AddTopic writes through and drops the topic's cached pool.
func (c *Catalog) AddTopic(ctx context.Context, topic domain.Topic) error {
	if err := c.source.AddTopic(ctx, topic); err != nil {
		return err
	}
	return c.Invalidate(ctx, topic.ID)
}

// AddQuestion writes through and drops the topic's cached pool so the question is served.
// An active question also leaves the retired set, which may outlive an in-memory source.
func (c *Catalog) AddQuestion(ctx context.Context, q domain.Question) error {
	if err := c.source.AddQuestion(ctx, q); err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.poolKey(q.TopicID))
	if q.Active {
		pipe.SRem(ctx, retiredKey, q.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate pool %s: %w", q.TopicID, err)
	}
	return nil
}

// DeactivateQuestion retires the question in the source and marks it retired
// in Redis. Safe to repeat.
func (c *Catalog) DeactivateQuestion(ctx context.Context, questionID string) error {
	if err := c.source.DeactivateQuestion(ctx, questionID); err != nil {
		return err
	}
	if err := c.client.SAdd(ctx, retiredKey, questionID).Err(); err != nil {
		return fmt.Errorf("mark question %s retired: %w", questionID, err)
	}
	return nil
}

// Invalidate drops a cached pool.
func (c *Catalog) Invalidate(ctx context.Context, topicID string) error {
	if err := c.client.Del(ctx, c.poolKey(topicID)).Err(); err != nil {
		return fmt.Errorf("invalidate pool %s: %w", topicID, err)
	}
	return nil
}

func (c *Catalog) pool(ctx context.Context, topicID string) ([]domain.Question, error) {
	key := c.poolKey(topicID)
	if pool, ok := c.cached(ctx, key); ok {
		return pool, nil
	}

	result, err, _ := c.sf.Do(topicID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if pool, ok := c.cached(ctx, key); ok {
			return pool, nil
		}

		pool, err := c.source.FindActiveQuestions(ctx, topicID, nil)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(pool)
		if err != nil {
			return nil, err
		}

		pipe := c.client.Pipeline()
		pipe.Set(ctx, key, raw, c.ttlWithJitter())
		for _, q := range pool {
			pipe.HSetNX(ctx, usageKey, q.ID, q.UsageCount)
		}
		_, _ = pipe.Exec(ctx)

		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *Catalog) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, false
	}
	return pool, true
}

// live drops retired questions from a cached pool and overlays usage counters.
func (c *Catalog) live(ctx context.Context, pool []domain.Question) ([]domain.Question, error) {
	ids := make([]string, len(pool))
	members := make([]interface{}, len(pool))
	for i, q := range pool {
		ids[i] = q.ID
		members[i] = q.ID
	}
	pipe := c.client.Pipeline()
	retired := pipe.SMIsMember(ctx, retiredKey, members...)
	counts := pipe.HMGet(ctx, usageKey, ids...)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read catalog state: %w", err)
	}

	gone := retired.Val()
	values := counts.Val()
	out := make([]domain.Question, 0, len(pool))
	for i, q := range pool {
		if !q.Active || (i < len(gone) && gone[i]) {
			continue
		}
		if i < len(values) {
			if s, ok := values[i].(string); ok {
				if n, err := strconv.ParseInt(s, 10, 64); err == nil {
					q.UsageCount = n
				}
			}
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *Catalog) poolKey(topicID string) string {
	return "catalog:pool:" + topicID
}

func (c *Catalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
