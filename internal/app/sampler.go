package app

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/metrics"
)

// CatalogReader is the read side of the content catalog used by the sampler.
type CatalogReader interface {
	FindTopic(ctx context.Context, topicID string) (domain.Topic, error)
	FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error)
	// IncrementUsage must add exactly one to each id atomically at the storage layer.
	IncrementUsage(ctx context.Context, questionIDs []string) error
}

// Sampler selects fair, duplicate-free question batches for a topic.
type Sampler struct {
	catalog CatalogReader
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time

	mu  sync.Mutex // guards rnd
	rnd *rand.Rand
}

// SamplerOption customizes a Sampler.
type SamplerOption func(*Sampler)

// WithRand fixes the random source, for reproducible tests.
func WithRand(rnd *rand.Rand) SamplerOption {
	return func(s *Sampler) { s.rnd = rnd }
}

// WithSamplerMetrics records served batches.
func WithSamplerMetrics(m *metrics.Metrics) SamplerOption {
	return func(s *Sampler) { s.metrics = m }
}

// WithSamplerLogger sets the logger.
func WithSamplerLogger(logger *zap.Logger) SamplerOption {
	return func(s *Sampler) { s.logger = logger }
}

func NewSampler(catalog CatalogReader, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		catalog: catalog,
		logger:  zap.NewNop(),
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectBatch draws up to limit active questions for a topic and bumps their usage counters.
func (s *Sampler) SelectBatch(ctx context.Context, topicID string, limit int, difficulty *domain.Difficulty) (domain.Batch, error) {
	if limit <= 0 {
		return domain.Batch{}, domain.NewValidationError("limit", "must be greater than zero")
	}

	topic, err := s.catalog.FindTopic(ctx, topicID)
	if err != nil {
		s.metrics.BatchFailed("not_found")
		return domain.Batch{}, err
	}

	pool, err := s.catalog.FindActiveQuestions(ctx, topicID, difficulty)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("load pool for topic %s: %w", topicID, err)
	}
	pool = eligible(pool, topicID, difficulty)
	if len(pool) == 0 {
		s.metrics.BatchFailed("empty_pool")
		return domain.Batch{}, &domain.EmptyPoolError{TopicID: topicID, Difficulty: difficulty}
	}

	s.mu.Lock()
	selected := pickFair(pool, limit, s.rnd)
	s.mu.Unlock()

	batch := domain.Batch{
		ID:        uuid.NewString(),
		TopicID:   topic.ID,
		Subject:   topic.Subject,
		Questions: selected,
		CreatedAt: s.clock(),
	}
	if err := s.catalog.IncrementUsage(ctx, batch.QuestionIDs()); err != nil {
		return domain.Batch{}, fmt.Errorf("increment usage for topic %s: %w", topicID, err)
	}

	s.metrics.BatchServed(len(selected))
	s.logger.Debug("batch selected",
		zap.String("batch_id", batch.ID),
		zap.String("topic_id", topicID),
		zap.Int("pool", len(pool)),
		zap.Int("size", len(selected)),
	)
	return batch, nil
}

// SelectBatchForGrade applies ScaleForGrade before selecting.
func (s *Sampler) SelectBatchForGrade(ctx context.Context, topicID string, limit, grade int) (domain.Batch, error) {
	if limit <= 0 {
		return domain.Batch{}, domain.NewValidationError("limit", "must be greater than zero")
	}
	scaling := ScaleForGrade(grade)
	difficulty := scaling.Difficulty
	return s.SelectBatch(ctx, topicID, scaling.Apply(limit), &difficulty)
}

// eligible drops inactive, off-topic, mismatched and repeated questions the store may have returned.
func eligible(pool []domain.Question, topicID string, difficulty *domain.Difficulty) []domain.Question {
	out := make([]domain.Question, 0, len(pool))
	seen := make(map[string]struct{}, len(pool))
	for _, q := range pool {
		if !q.Active || q.TopicID != topicID {
			continue
		}
		if difficulty != nil && q.Difficulty != *difficulty {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	return out
}

// pickFair returns the whole pool shuffled when it fits, otherwise draws limit
// questions tier by tier in ascending usage order. A tier that fits is taken
// whole; the tier that overflows is sampled uniformly without replacement.
func pickFair(pool []domain.Question, limit int, rnd *rand.Rand) []domain.Question {
	candidates := make([]domain.Question, len(pool))
	copy(candidates, pool)

	if len(candidates) <= limit {
		shuffle(candidates, rnd)
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].UsageCount != candidates[j].UsageCount {
			return candidates[i].UsageCount < candidates[j].UsageCount
		}
		return candidates[i].ID < candidates[j].ID
	})

	selected := make([]domain.Question, 0, limit)
	for start := 0; start < len(candidates) && len(selected) < limit; {
		end := start + 1
		for end < len(candidates) && candidates[end].UsageCount == candidates[start].UsageCount {
			end++
		}
		tier := candidates[start:end]
		need := limit - len(selected)
		if len(tier) <= need {
			selected = append(selected, tier...)
		} else {
			selected = append(selected, drawUniform(tier, need, rnd)...)
		}
		start = end
	}

	shuffle(selected, rnd)
	return selected
}

// drawUniform picks k distinct elements with a partial Fisher–Yates pass over a copy.
func drawUniform(tier []domain.Question, k int, rnd *rand.Rand) []domain.Question {
	work := make([]domain.Question, len(tier))
	copy(work, tier)
	for i := 0; i < k; i++ {
		j := i + rnd.Intn(len(work)-i)
		work[i], work[j] = work[j], work[i]
	}
	return work[:k]
}

func shuffle(qs []domain.Question, rnd *rand.Rand) {
	for i := len(qs) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		qs[i], qs[j] = qs[j], qs[i]
	}
}
