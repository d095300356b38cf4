package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-engine-service/internal/domain"
)

// CatalogSource is the catalog API behind the cache (see app.CatalogReader and seed.Writer).
type CatalogSource interface {
	FindTopic(ctx context.Context, topicID string) (domain.Topic, error)
	FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error)
	IncrementUsage(ctx context.Context, questionIDs []string) error
	AddTopic(ctx context.Context, topic domain.Topic) error
	AddQuestion(ctx context.Context, q domain.Question) error
	DeactivateQuestion(ctx context.Context, questionID string) error
}

// TopicCache caches topic lookups with TTL to avoid repeated DB hits.
// Question pools and usage increments always go to the source so fairness
// sees fresh counters.
type TopicCache struct {
	source CatalogSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedTopic
}

type cachedTopic struct {
	topic     domain.Topic
	expiresAt time.Time
}

func NewTopicCache(source CatalogSource, ttl time.Duration) *TopicCache {
	return &TopicCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTopic),
	}
}

func (c *TopicCache) FindTopic(ctx context.Context, topicID string) (domain.Topic, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[topicID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.topic, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(topicID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[topicID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.topic, nil
		}
		c.mu.RUnlock()

		topic, err := c.source.FindTopic(ctx, topicID)
		if err != nil {
			return domain.Topic{}, err
		}

		c.mu.Lock()
		c.cache[topicID] = cachedTopic{
			topic:     topic,
			expiresAt: now.Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return topic, nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return result.(domain.Topic), nil
}

func (c *TopicCache) FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error) {
	return c.source.FindActiveQuestions(ctx, topicID, difficulty)
}

func (c *TopicCache) IncrementUsage(ctx context.Context, questionIDs []string) error {
	return c.source.IncrementUsage(ctx, questionIDs)
}

// AddTopic writes through and drops the cached topic.
func (c *TopicCache) AddTopic(ctx context.Context, topic domain.Topic) error {
	if err := c.source.AddTopic(ctx, topic); err != nil {
		return err
	}
	c.Invalidate(topic.ID)
	return nil
}

// AddQuestion writes through; the topic's derived count changes.
func (c *TopicCache) AddQuestion(ctx context.Context, q domain.Question) error {
	if err := c.source.AddQuestion(ctx, q); err != nil {
		return err
	}
	c.Invalidate(q.TopicID)
	return nil
}

// DeactivateQuestion writes through. The question's topic is unknown here,
// so every cached topic is dropped.
func (c *TopicCache) DeactivateQuestion(ctx context.Context, questionID string) error {
	if err := c.source.DeactivateQuestion(ctx, questionID); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache = make(map[string]cachedTopic)
	c.mu.Unlock()
	return nil
}

// Invalidate drops a cached topic, e.g. after its questions changed.
func (c *TopicCache) Invalidate(topicID string) {
	c.mu.Lock()
	delete(c.cache, topicID)
	c.mu.Unlock()
}

func (c *TopicCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
