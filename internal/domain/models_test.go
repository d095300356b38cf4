package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuestion() Question {
	return Question{
		ID:            "q1",
		TopicID:       "algebra",
		Text:          "x + 2 = 5, x = ?",
		Options:       []string{"1", "2", "3", "4"},
		CorrectAnswer: "3",
		Difficulty:    DifficultyEasy,
		Points:        1,
		Active:        true,
	}
}

func TestQuestionValidate(t *testing.T) {
	require.NoError(t, validQuestion().Validate())

	tests := []struct {
		name   string
		mutate func(q *Question)
		field  string
	}{
		{"three options", func(q *Question) { q.Options = q.Options[:3] }, "options"},
		{"duplicate option", func(q *Question) { q.Options[1] = q.Options[0] }, "options"},
		{"answer not an option", func(q *Question) { q.CorrectAnswer = "7" }, "correctAnswer"},
		{"unknown difficulty", func(q *Question) { q.Difficulty = "extreme" }, "difficulty"},
		{"negative points", func(q *Question) { q.Points = -2 }, "points"},
		{"missing topic", func(q *Question) { q.TopicID = "" }, "topicId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			tt.mutate(&q)

			err := q.Validate()
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPointValueDefaultsToOne(t *testing.T) {
	q := validQuestion()
	q.Points = 0
	assert.Equal(t, 1, q.PointValue())
	q.Points = 3
	assert.Equal(t, 3, q.PointValue())
}

func TestIsCorrectIsExact(t *testing.T) {
	q := validQuestion()
	q.Options = []string{"Paris", "Rome", "Madrid", "Berlin"}
	q.CorrectAnswer = "Paris"

	assert.True(t, IsCorrect(q, "Paris"))
	assert.False(t, IsCorrect(q, "paris"))
	assert.False(t, IsCorrect(q, " Paris"))
	assert.False(t, IsCorrect(q, ""))
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseDifficulty("hard")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, DifficultyHard, *d)

	_, err = ParseDifficulty("HARD")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestViewHidesAnswer(t *testing.T) {
	q := validQuestion()
	q.Points = 0
	v := q.View()
	assert.Equal(t, q.Options, v.Options)
	assert.Equal(t, 1, v.Points)

	v.Options[0] = "changed"
	assert.Equal(t, "1", q.Options[0])
}

func TestErrorsMatchSentinels(t *testing.T) {
	assert.ErrorIs(t, NewNotFoundError("topic", "t1"), ErrNotFound)
	assert.ErrorIs(t, &EmptyPoolError{TopicID: "t1"}, ErrEmptyPool)

	cause := errors.New("connection reset")
	perr := &PersistenceError{Attempts: 3, Err: cause}
	assert.ErrorIs(t, perr, ErrPersistence)
	assert.ErrorIs(t, perr, cause)
}
