package app

import (
	"fmt"
	"math"

	"quiz-engine-service/internal/domain"
)

// Grade scores submissions against a batch. It is pure: identical inputs
// always produce identical results, and neither argument is modified.
// Questions without a submission are incorrect with a nil selection.
func Grade(batch domain.Batch, submissions []domain.AnswerSubmission) (domain.Result, error) {
	inBatch := make(map[string]struct{}, len(batch.Questions))
	for _, q := range batch.Questions {
		inBatch[q.ID] = struct{}{}
	}

	selected := make(map[string]string, len(submissions))
	for _, sub := range submissions {
		if _, ok := inBatch[sub.QuestionID]; !ok {
			return domain.Result{}, domain.NewValidationError("submissions",
				fmt.Sprintf("question %q is not part of batch %s", sub.QuestionID, batch.ID))
		}
		if _, dup := selected[sub.QuestionID]; dup {
			return domain.Result{}, domain.NewValidationError("submissions",
				fmt.Sprintf("question %q answered more than once", sub.QuestionID))
		}
		selected[sub.QuestionID] = sub.SelectedAnswer
	}

	result := domain.Result{
		TotalQuestions: len(batch.Questions),
		PerQuestion:    make([]domain.QuestionResult, 0, len(batch.Questions)),
	}
	for _, q := range batch.Questions {
		points := q.PointValue()
		result.TotalPossiblePoints += points

		entry := domain.QuestionResult{
			QuestionID:  q.ID,
			Correct:     q.CorrectAnswer,
			Explanation: q.Explanation,
		}
		if answer, ok := selected[q.ID]; ok {
			entry.Selected = &answer
			entry.IsCorrect = domain.IsCorrect(q, answer)
		}
		if entry.IsCorrect {
			entry.Awarded = points
			result.Score += points
		}
		result.PerQuestion = append(result.PerQuestion, entry)
	}
	result.Percentage = Percentage(result.Score, result.TotalPossiblePoints)
	return result, nil
}

// Percentage returns round(100*score/possible) clamped to [0, 100], or 0 when nothing was possible.
func Percentage(score, possible int) int {
	if possible <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(score) / float64(possible)))
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
