package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/infra/memory"
)

func question(id, topicID string, points int, difficulty domain.Difficulty) domain.Question {
	return domain.Question{
		ID:            id,
		TopicID:       topicID,
		Text:          "Question " + id,
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: "B",
		Difficulty:    difficulty,
		Points:        points,
		Active:        true,
		Explanation:   "B is right for " + id,
	}
}

// newCatalog builds a topic with n active easy questions worth one point each.
func newCatalog(t *testing.T, topicID string, n int) *memory.Catalog {
	t.Helper()
	ctx := context.Background()
	c := memory.NewCatalog()
	if err := c.AddTopic(ctx, domain.Topic{ID: topicID, Subject: "math", Category: "numbers", Name: topicID}); err != nil {
		t.Fatalf("add topic: %v", err)
	}
	for i := 0; i < n; i++ {
		if err := c.AddQuestion(ctx, question(fmt.Sprintf("%s-q%d", topicID, i), topicID, 1, domain.DifficultyEasy)); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	return c
}

// algebraCatalog is the three-question topic with points 1, 1 and 2.
func algebraCatalog(t *testing.T) *memory.Catalog {
	t.Helper()
	ctx := context.Background()
	c := memory.NewCatalog()
	if err := c.AddTopic(ctx, domain.Topic{ID: "algebra", Subject: "math", Category: "numbers", Name: "Algebra"}); err != nil {
		t.Fatalf("add topic: %v", err)
	}
	for _, q := range []domain.Question{
		question("a1", "algebra", 1, domain.DifficultyEasy),
		question("a2", "algebra", 1, domain.DifficultyMedium),
		question("a3", "algebra", 2, domain.DifficultyHard),
	} {
		if err := c.AddQuestion(ctx, q); err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	return c
}

func seededSampler(catalog app.CatalogReader, seed int64) *app.Sampler {
	return app.NewSampler(catalog, app.WithRand(rand.New(rand.NewSource(seed))))
}

func findQuestion(batch domain.Batch, id string) domain.Question {
	for _, q := range batch.Questions {
		if q.ID == id {
			return q
		}
	}
	return domain.Question{}
}
