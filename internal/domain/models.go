package domain

import (
	"fmt"
	"time"
)

// OptionCount is the fixed number of answer options carried by every question.
const OptionCount = 4

// Difficulty grades questions and topics.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty converts user input into a Difficulty. An empty string yields nil (no filter).
func ParseDifficulty(raw string) (*Difficulty, error) {
	if raw == "" {
		return nil, nil
	}
	d := Difficulty(raw)
	if !d.Valid() {
		return nil, NewValidationError("difficulty", fmt.Sprintf("unknown difficulty %q", raw))
	}
	return &d, nil
}

// Topic groups questions under a subject and category.
type Topic struct {
	ID             string     `json:"id"`
	Subject        string     `json:"subject"`
	Category       string     `json:"category"`
	Name           string     `json:"name"`
	Difficulty     Difficulty `json:"difficulty"`
	TotalQuestions int        `json:"totalQuestions"` // active questions only
}

// Question models an MCQ question with exactly four options and one correct answer.
type Question struct {
	ID            string     `json:"id"`
	TopicID       string     `json:"topicId"`
	Category      string     `json:"category"`
	Subject       string     `json:"subject"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correctAnswer"`
	Difficulty    Difficulty `json:"difficulty"`
	Points        int        `json:"points"` // defaults to 1 if zero
	Active        bool       `json:"active"`
	UsageCount    int64      `json:"usageCount"`
	Explanation   string     `json:"explanation,omitempty"`
}

// PointValue returns the configured points, falling back to 1 when unset.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if q.ID == "" {
		return NewValidationError("id", "question id is required")
	}
	if q.TopicID == "" {
		return NewValidationError("topicId", "question must belong to a topic")
	}
	if len(q.Options) != OptionCount {
		return NewValidationError("options", fmt.Sprintf("question %s has %d options, want %d", q.ID, len(q.Options), OptionCount))
	}
	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt]; dup {
			return NewValidationError("options", fmt.Sprintf("question %s repeats option %q", q.ID, opt))
		}
		seen[opt] = struct{}{}
	}
	if _, ok := seen[q.CorrectAnswer]; !ok {
		return NewValidationError("correctAnswer", fmt.Sprintf("question %s answer is not one of its options", q.ID))
	}
	if !q.Difficulty.Valid() {
		return NewValidationError("difficulty", fmt.Sprintf("question %s has unknown difficulty %q", q.ID, q.Difficulty))
	}
	if q.Points < 0 {
		return NewValidationError("points", fmt.Sprintf("question %s has negative points", q.ID))
	}
	if q.UsageCount < 0 {
		return NewValidationError("usageCount", fmt.Sprintf("question %s has negative usage count", q.ID))
	}
	return nil
}

// Batch is the immutable ordered set of questions served for one quiz attempt.
type Batch struct {
	ID        string     `json:"id"`
	TopicID   string     `json:"topicId"`
	Subject   string     `json:"subject"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Len returns the number of questions in the batch.
func (b Batch) Len() int { return len(b.Questions) }

// QuestionIDs lists the batch question ids in order.
func (b Batch) QuestionIDs() []string {
	ids := make([]string, len(b.Questions))
	for i, q := range b.Questions {
		ids[i] = q.ID
	}
	return ids
}

// QuestionView is a question stripped of its answer, safe to show before it is answered.
type QuestionView struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Options    []string   `json:"options"`
	Difficulty Difficulty `json:"difficulty"`
	Points     int        `json:"points"`
}

// View hides the correct answer and explanation.
func (q Question) View() QuestionView {
	opts := make([]string, len(q.Options))
	copy(opts, q.Options)
	return QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Options:    opts,
		Difficulty: q.Difficulty,
		Points:     q.PointValue(),
	}
}

// AnswerSubmission models one answer sent by a client.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
}

// QuestionResult is the graded outcome of a single batch question.
type QuestionResult struct {
	QuestionID  string  `json:"questionId"`
	Selected    *string `json:"selected"`
	Correct     string  `json:"correct"`
	IsCorrect   bool    `json:"isCorrect"`
	Awarded     int     `json:"awarded"`
	Explanation string  `json:"explanation"`
}

// Result summarizes a graded batch.
type Result struct {
	Score               int              `json:"score"`
	TotalQuestions      int              `json:"totalQuestions"`
	TotalPossiblePoints int              `json:"totalPossiblePoints"`
	Percentage          int              `json:"percentage"`
	PerQuestion         []QuestionResult `json:"perQuestion"`
}

// ProgressRecord is one immutable ledger entry for a completed attempt.
type ProgressRecord struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Subject        string    `json:"subject"`
	TopicID        string    `json:"topicId,omitempty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     int       `json:"percentage"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// SubjectSummary aggregates a user's records for one subject.
type SubjectSummary struct {
	Subject         string  `json:"subject"`
	Attempts        int     `json:"attempts"`
	BestScore       int     `json:"bestScore"`
	BestPercentage  int     `json:"bestPercentage"`
	AverageAccuracy float64 `json:"averageAccuracy"`
	Trend           []int   `json:"trend"` // percentages, oldest first
}

// Overview aggregates every subject a user has attempted.
type Overview struct {
	UserID         string           `json:"userId"`
	Attempts       int              `json:"attempts"`
	GlobalAccuracy float64          `json:"globalAccuracy"`
	Subjects       []SubjectSummary `json:"subjects"`
}
