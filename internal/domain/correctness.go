package domain

// IsCorrect reports whether selected matches the question's correct answer.
// Comparison is exact: case-sensitive and untrimmed. Both the grader and the
// session's optimistic scoring call this so they cannot diverge.
func IsCorrect(q Question, selected string) bool {
	return selected == q.CorrectAnswer
}
