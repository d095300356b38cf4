package redis

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/infra/memory"
)

func TestCatalogCachesPoolInRedis(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()

	source := &countingSource{CatalogSource: sampleCatalog(t)}
	catalog := NewCatalog(newClient(mr), source, time.Minute, nil)

	pool, err := catalog.FindActiveQuestions(ctx, "algebra", nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(pool) != 3 || source.calls != 1 {
		t.Fatalf("expected 3 questions from one load, got %d (calls %d)", len(pool), source.calls)
	}
	if !mr.Exists("catalog:pool:algebra") {
		t.Fatalf("expected pool key to be set")
	}

	// Second call should hit cache, source not called.
	hard := domain.DifficultyHard
	filtered, err := catalog.FindActiveQuestions(ctx, "algebra", &hard)
	if err != nil {
		t.Fatalf("find hard: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.calls)
	}
	if len(filtered) != 1 || filtered[0].ID != "q3" || filtered[0].CorrectAnswer != "4" {
		t.Fatalf("unexpected filtered pool %+v", filtered)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = catalog.FindActiveQuestions(ctx, "algebra", nil)
	if source.calls != 2 {
		t.Fatalf("expected reload after expiry, source calls=%d", source.calls)
	}

	if err := catalog.Invalidate(ctx, "algebra"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = catalog.FindActiveQuestions(ctx, "algebra", nil)
	if source.calls != 3 {
		t.Fatalf("expected reload after invalidate, source calls=%d", source.calls)
	}
}

func TestCatalogOverlaysUsageCounters(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()

	source := sampleCatalog(t)
	catalog := NewCatalog(newClient(mr), source, time.Minute, nil)

	if _, err := catalog.FindActiveQuestions(ctx, "algebra", nil); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := catalog.IncrementUsage(ctx, []string{"q1", "q2"}); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	pool, err := catalog.FindActiveQuestions(ctx, "algebra", nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	usage := map[string]int64{}
	for _, q := range pool {
		usage[q.ID] = q.UsageCount
	}
	if usage["q1"] != 3 || usage["q2"] != 3 || usage["q3"] != 0 {
		t.Fatalf("expected live counters over the cached pool, got %v", usage)
	}
	if got := mr.HGet(usageKey, "q1"); got != "3" {
		t.Fatalf("expected redis counter 3, got %q", got)
	}
	if q, _ := source.Question("q1"); q.UsageCount != 3 {
		t.Fatalf("expected durable counter 3, got %d", q.UsageCount)
	}
}

func TestCatalogIncrementUnknownLeavesCounters(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()
	catalog := NewCatalog(newClient(mr), sampleCatalog(t), time.Minute, nil)

	err := catalog.IncrementUsage(ctx, []string{"q1", "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists(usageKey) {
		t.Fatalf("expected no counters written after a failed increment")
	}
}

func TestCatalogPassesMissingTopicErrors(t *testing.T) {
	mr := runMiniredis(t)
	catalog := NewCatalog(newClient(mr), sampleCatalog(t), time.Minute, nil)

	if _, err := catalog.FindActiveQuestions(context.Background(), "geometry", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("catalog:pool:geometry") {
		t.Fatalf("misses must not be cached")
	}
}

func TestCatalogStopsServingRetiredQuestions(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()

	source := &countingSource{CatalogSource: sampleCatalog(t)}
	catalog := NewCatalog(newClient(mr), source, time.Minute, nil)
	sampler := app.NewSampler(catalog, app.WithRand(rand.New(rand.NewSource(1))))

	if _, err := sampler.SelectBatch(ctx, "algebra", 3, nil); err != nil {
		t.Fatalf("warm batch: %v", err)
	}
	if err := catalog.DeactivateQuestion(ctx, "q2"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	batch, err := sampler.SelectBatch(ctx, "algebra", 3, nil)
	if err != nil {
		t.Fatalf("batch after retire: %v", err)
	}
	if len(batch.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(batch.Questions))
	}
	for _, q := range batch.Questions {
		if q.ID == "q2" {
			t.Fatalf("retired q2 was served: %+v", batch.Questions)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected the cached pool to be reused, source calls=%d", source.calls)
	}
	if q, _ := source.CatalogSource.(*memory.Catalog).Question("q2"); q.Active || q.UsageCount != 1 {
		t.Fatalf("expected q2 inactive with usage 1, got active=%v usage=%d", q.Active, q.UsageCount)
	}

	// Retiring again is harmless.
	if err := catalog.DeactivateQuestion(ctx, "q2"); err != nil {
		t.Fatalf("repeat deactivate: %v", err)
	}
	if err := catalog.DeactivateQuestion(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogAddQuestionDropsPool(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()
	catalog := NewCatalog(newClient(mr), sampleCatalog(t), time.Minute, nil)

	if _, err := catalog.FindActiveQuestions(ctx, "algebra", nil); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	// A retired id that comes back active is served again.
	if _, err := mr.SAdd(retiredKey, "q4"); err != nil {
		t.Fatalf("sadd: %v", err)
	}
	err := catalog.AddQuestion(ctx, domain.Question{
		ID:            "q4",
		TopicID:       "algebra",
		Text:          "What is 3 + 3?",
		Options:       []string{"5", "6", "7", "8"},
		CorrectAnswer: "6",
		Difficulty:    domain.DifficultyEasy,
		Points:        1,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	if mr.Exists("catalog:pool:algebra") {
		t.Fatalf("expected pool key to be dropped")
	}

	pool, err := catalog.FindActiveQuestions(ctx, "algebra", nil)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(pool) != 4 {
		t.Fatalf("expected the new question to be served, got %d questions", len(pool))
	}
}

func TestCatalogFallsBackToSourceWhenRedisFails(t *testing.T) {
	mr := runMiniredis(t)
	ctx := context.Background()
	source := sampleCatalog(t)
	catalog := NewCatalog(newClient(mr), source, time.Minute, nil)

	if _, err := catalog.FindActiveQuestions(ctx, "algebra", nil); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	mr.SetError("ERR redis is down")
	defer mr.SetError("")

	if err := catalog.IncrementUsage(ctx, []string{"q1"}); err != nil {
		t.Fatalf("expected mirror failure to be tolerated, got %v", err)
	}
	if q, _ := source.Question("q1"); q.UsageCount != 1 {
		t.Fatalf("expected durable counter 1, got %d", q.UsageCount)
	}

	pool, err := catalog.FindActiveQuestions(ctx, "algebra", nil)
	if err != nil {
		t.Fatalf("expected source fallback, got %v", err)
	}
	usage := map[string]int64{}
	for _, q := range pool {
		usage[q.ID] = q.UsageCount
	}
	if len(pool) != 3 || usage["q1"] != 1 {
		t.Fatalf("expected source pool with durable counts, got %v", usage)
	}
}

type countingSource struct {
	CatalogSource
	calls int
}

func (s *countingSource) FindActiveQuestions(ctx context.Context, topicID string, difficulty *domain.Difficulty) ([]domain.Question, error) {
	s.calls++
	return s.CatalogSource.FindActiveQuestions(ctx, topicID, difficulty)
}

func runMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func sampleCatalog(t *testing.T) *memory.Catalog {
	t.Helper()
	ctx := context.Background()
	c := memory.NewCatalog()
	if err := c.AddTopic(ctx, domain.Topic{ID: "algebra", Subject: "math", Name: "Algebra"}); err != nil {
		t.Fatalf("add topic: %v", err)
	}
	for _, q := range []struct {
		id         string
		difficulty domain.Difficulty
		points     int
	}{
		{"q1", domain.DifficultyEasy, 1},
		{"q2", domain.DifficultyEasy, 1},
		{"q3", domain.DifficultyHard, 2},
	} {
		err := c.AddQuestion(ctx, domain.Question{
			ID:            q.id,
			TopicID:       "algebra",
			Text:          "What is 2 + 2?",
			Options:       []string{"3", "4", "5", "6"},
			CorrectAnswer: "4",
			Difficulty:    q.difficulty,
			Points:        q.points,
			Active:        true,
		})
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	return c
}
