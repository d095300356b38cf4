package app_test

import (
	"errors"
	"reflect"
	"testing"

	"quiz-engine-service/internal/app"
	"quiz-engine-service/internal/domain"
)

func algebraBatch() domain.Batch {
	return domain.Batch{
		ID:      "b1",
		TopicID: "algebra",
		Subject: "math",
		Questions: []domain.Question{
			question("a1", "algebra", 1, domain.DifficultyEasy),
			question("a2", "algebra", 1, domain.DifficultyMedium),
			question("a3", "algebra", 2, domain.DifficultyHard),
		},
	}
}

func TestGradeScoresByPoints(t *testing.T) {
	result, err := app.Grade(algebraBatch(), []domain.AnswerSubmission{
		{QuestionID: "a1", SelectedAnswer: "B"},
		{QuestionID: "a2", SelectedAnswer: "C"},
		{QuestionID: "a3", SelectedAnswer: "B"},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if result.Score != 3 || result.TotalQuestions != 3 || result.TotalPossiblePoints != 4 || result.Percentage != 75 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.PerQuestion) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.PerQuestion))
	}
	for i, id := range []string{"a1", "a2", "a3"} {
		entry := result.PerQuestion[i]
		if entry.QuestionID != id {
			t.Fatalf("entry %d is %s, want batch order %s", i, entry.QuestionID, id)
		}
		if entry.Explanation == "" || entry.Correct != "B" {
			t.Fatalf("entry %d missing review data: %+v", i, entry)
		}
	}
	if result.PerQuestion[1].IsCorrect || result.PerQuestion[1].Awarded != 0 {
		t.Fatalf("a2 should be incorrect, got %+v", result.PerQuestion[1])
	}
	if !result.PerQuestion[2].IsCorrect || result.PerQuestion[2].Awarded != 2 {
		t.Fatalf("a3 should award 2 points, got %+v", result.PerQuestion[2])
	}
}

func TestGradeTreatsOmittedAsIncorrect(t *testing.T) {
	result, err := app.Grade(algebraBatch(), []domain.AnswerSubmission{
		{QuestionID: "a3", SelectedAnswer: "B"},
	})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	for _, entry := range result.PerQuestion[:2] {
		if entry.IsCorrect || entry.Selected != nil {
			t.Fatalf("omitted %s should be incorrect with nil selection, got %+v", entry.QuestionID, entry)
		}
	}
	if result.Score != 2 || result.Percentage != 50 {
		t.Fatalf("expected 2 points / 50%%, got %+v", result)
	}

	empty, err := app.Grade(algebraBatch(), nil)
	if err != nil {
		t.Fatalf("grade empty: %v", err)
	}
	if empty.Score != 0 || empty.Percentage != 0 {
		t.Fatalf("expected zero result, got %+v", empty)
	}
}

func TestGradeIsIdempotent(t *testing.T) {
	batch := algebraBatch()
	subs := []domain.AnswerSubmission{
		{QuestionID: "a1", SelectedAnswer: "B"},
		{QuestionID: "a2", SelectedAnswer: "b"},
	}
	first, err := app.Grade(batch, subs)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	second, err := app.Grade(batch, subs)
	if err != nil {
		t.Fatalf("grade again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("grading twice differs:\n%+v\n%+v", first, second)
	}
	if !reflect.DeepEqual(batch, algebraBatch()) {
		t.Fatalf("grading mutated the batch")
	}
}

func TestGradeRejectsForeignQuestions(t *testing.T) {
	_, err := app.Grade(algebraBatch(), []domain.AnswerSubmission{
		{QuestionID: "a1", SelectedAnswer: "B"},
		{QuestionID: "zz", SelectedAnswer: "B"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = app.Grade(algebraBatch(), []domain.AnswerSubmission{
		{QuestionID: "a1", SelectedAnswer: "B"},
		{QuestionID: "a1", SelectedAnswer: "C"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate submission to be rejected, got %v", err)
	}
}

func TestGradeEmptyBatch(t *testing.T) {
	result, err := app.Grade(domain.Batch{ID: "empty"}, nil)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if result.Percentage != 0 || result.TotalPossiblePoints != 0 {
		t.Fatalf("expected 0%% for empty batch, got %+v", result)
	}
}

func TestPercentageBounds(t *testing.T) {
	tests := []struct {
		score, possible, want int
	}{
		{0, 0, 0},
		{3, 4, 75},
		{1, 3, 33},
		{2, 3, 67},
		{5, 5, 100},
		{7, 5, 100},
		{-1, 5, 0},
	}
	for _, tt := range tests {
		if got := app.Percentage(tt.score, tt.possible); got != tt.want {
			t.Fatalf("Percentage(%d, %d) = %d, want %d", tt.score, tt.possible, got, tt.want)
		}
	}
}
