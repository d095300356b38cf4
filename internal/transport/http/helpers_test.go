package http

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/infra/memory"
)

type testEnv struct {
	server  *httptest.Server
	service *app.QuizService
	catalog *memory.Catalog
}

func newTestEnv(t *testing.T, ledgerRepo app.LedgerRepository) *testEnv {
	t.Helper()
	catalog := sampleCatalog(t)
	if ledgerRepo == nil {
		ledgerRepo = memory.NewLedgerStore()
	}
	service := app.NewQuizService(
		app.NewSampler(catalog, app.WithRand(rand.New(rand.NewSource(3)))),
		app.NewLedger(ledgerRepo, nil, nil),
		memory.NewBatchStore(time.Hour),
		memory.NewSessionStore(),
		app.ServiceConfig{Retry: app.RetryPolicy{MaxAttempts: 2}},
	)

	mux := http.NewServeMux()
	NewHandler(service, catalog, nil).Register(mux)
	mux.HandleFunc("GET /ws", NewWSHandler(service, nil).ServeWS)
	server := httptest.NewServer(Instrument(mux, nil, nil))
	t.Cleanup(server.Close)
	return &testEnv{server: server, service: service, catalog: catalog}
}

func sampleCatalog(t *testing.T) *memory.Catalog {
	t.Helper()
	ctx := context.Background()
	c := memory.NewCatalog()
	for _, topic := range []domain.Topic{
		{ID: "algebra", Subject: "math", Name: "Algebra"},
		{ID: "empty", Subject: "math", Name: "Empty"},
	} {
		if err := c.AddTopic(ctx, topic); err != nil {
			t.Fatalf("add topic: %v", err)
		}
	}
	for _, q := range []struct {
		id         string
		difficulty domain.Difficulty
		points     int
	}{
		{"a1", domain.DifficultyEasy, 1},
		{"a2", domain.DifficultyMedium, 1},
		{"a3", domain.DifficultyHard, 2},
	} {
		err := c.AddQuestion(ctx, domain.Question{
			ID:            q.id,
			TopicID:       "algebra",
			Text:          "Pick B",
			Options:       []string{"A", "B", "C", "D"},
			CorrectAnswer: "B",
			Difficulty:    q.difficulty,
			Points:        q.points,
			Active:        true,
			Explanation:   "B is correct",
		})
		if err != nil {
			t.Fatalf("add question: %v", err)
		}
	}
	return c
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}
