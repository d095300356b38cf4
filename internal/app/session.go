package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quiz-engine-service/internal/domain"
)

// State is the lifecycle phase of a quiz session.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// BatchSampler supplies question batches to sessions.
type BatchSampler interface {
	SelectBatch(ctx context.Context, topicID string, limit int, difficulty *domain.Difficulty) (domain.Batch, error)
}

// ResultRecorder persists a finished attempt. Draft fixes the record id once
// so retried appends of the same attempt store a single record.
type ResultRecorder interface {
	Draft(userID, subject, topicID string, result domain.Result) (domain.ProgressRecord, error)
	Append(ctx context.Context, rec domain.ProgressRecord) error
}

// TopicRequest describes which batch a session should draw.
type TopicRequest struct {
	TopicID    string             `json:"topicId"`
	Limit      int                `json:"limit"`
	Difficulty *domain.Difficulty `json:"difficulty,omitempty"`
}

// Feedback is returned immediately after an answer.
type Feedback struct {
	Index         int    `json:"index"`
	QuestionID    string `json:"questionId"`
	Selected      string `json:"selected"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
	Awarded       int    `json:"awarded"`
	ScoreSoFar    int    `json:"scoreSoFar"`
}

// Snapshot is the read-only view the presentation layer renders from.
type Snapshot struct {
	SessionID      string                `json:"sessionId"`
	UserID         string                `json:"userId"`
	TopicID        string                `json:"topicId,omitempty"`
	BatchID        string                `json:"batchId,omitempty"`
	State          State                 `json:"state"`
	CurrentIndex   int                   `json:"currentIndex"`
	Score          int                   `json:"score"`
	TotalQuestions int                   `json:"totalQuestions"`
	Answered       []bool                `json:"answered"`
	Questions      []domain.QuestionView `json:"questions"`
	Completed      bool                  `json:"completed"`
	Result         *domain.Result        `json:"result,omitempty"`
	Persisted      bool                  `json:"persisted"`
	RecordID       string                `json:"recordId,omitempty"`
	PersistError   string                `json:"persistError,omitempty"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Session drives one quiz attempt by one user. Transitions are serialized by mu.
type Session struct {
	id       string
	userID   string
	sampler  BatchSampler
	recorder ResultRecorder
	retry    RetryPolicy
	now      func() time.Time

	mu         sync.Mutex
	state      State
	request    TopicRequest
	batch      domain.Batch
	answers    []*string
	current    int
	score      int
	result     *domain.Result
	record     *domain.ProgressRecord
	pending    *domain.ProgressRecord
	persistErr error
	updatedAt  time.Time
}

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	Sampler  BatchSampler
	Recorder ResultRecorder
	Retry    RetryPolicy
	Now      func() time.Time
}

func NewSession(id, userID string, cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy
	}
	return &Session{
		id:        id,
		userID:    userID,
		sampler:   cfg.Sampler,
		recorder:  cfg.Recorder,
		retry:     retry,
		now:       now,
		state:     StateNotStarted,
		updatedAt: now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// Start samples the first batch. On failure the session stays NotStarted.
func (s *Session) Start(ctx context.Context, req TopicRequest) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return s.snapshotLocked(), fmt.Errorf("start from %s: %w", s.state, domain.ErrInvalidTransition)
	}
	batch, err := s.sampler.SelectBatch(ctx, req.TopicID, req.Limit, req.Difficulty)
	if err != nil {
		return s.snapshotLocked(), err
	}
	s.request = req
	s.loadBatchLocked(batch)
	return s.snapshotLocked(), nil
}

// Answer records the choice for a question. Each index can be answered once.
// The cursor stays where it is; only Advance moves it.
func (s *Session) Answer(index int, choice string) (Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return Feedback{}, fmt.Errorf("answer in %s: %w", s.state, domain.ErrInvalidTransition)
	}
	if index < 0 || index >= len(s.batch.Questions) {
		return Feedback{}, domain.NewValidationError("index", fmt.Sprintf("%d is outside the batch of %d", index, len(s.batch.Questions)))
	}
	if s.answers[index] != nil {
		return Feedback{}, fmt.Errorf("question %d: %w", index, domain.ErrAlreadyAnswered)
	}

	q := s.batch.Questions[index]
	selected := choice
	s.answers[index] = &selected

	fb := Feedback{
		Index:         index,
		QuestionID:    q.ID,
		Selected:      choice,
		IsCorrect:     domain.IsCorrect(q, choice),
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}
	if fb.IsCorrect {
		fb.Awarded = q.PointValue()
		s.score += fb.Awarded
	}
	fb.ScoreSoFar = s.score
	s.updatedAt = s.now()
	return fb, nil
}

// Advance moves to the next unanswered question. When none is left after the
// current index the session completes: the batch is graded and the result is
// recorded. A recording failure leaves the session Completed with its result
// and returns a PersistenceError; PersistResult retries only that step.
func (s *Session) Advance(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress {
		return s.snapshotLocked(), fmt.Errorf("advance in %s: %w", s.state, domain.ErrInvalidTransition)
	}
	for i := s.current + 1; i < len(s.answers); i++ {
		if s.answers[i] == nil {
			s.current = i
			s.updatedAt = s.now()
			return s.snapshotLocked(), nil
		}
	}

	result, err := Grade(s.batch, s.submissionsLocked())
	if err != nil {
		return s.snapshotLocked(), fmt.Errorf("grade session %s: %w", s.id, err)
	}
	s.state = StateCompleted
	s.result = &result
	s.updatedAt = s.now()

	err = s.persistLocked(ctx)
	return s.snapshotLocked(), err
}

// PersistResult retries recording a completed result that failed to persist.
func (s *Session) PersistResult(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCompleted || s.result == nil {
		return s.snapshotLocked(), fmt.Errorf("persist in %s: %w", s.state, domain.ErrInvalidTransition)
	}
	if s.record != nil {
		return s.snapshotLocked(), nil
	}
	err := s.persistLocked(ctx)
	return s.snapshotLocked(), err
}

// Retry discards the current batch and answers and starts over with a fresh
// batch. If sampling fails the session keeps its previous state.
func (s *Session) Retry(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress && s.state != StateCompleted {
		return s.snapshotLocked(), fmt.Errorf("retry in %s: %w", s.state, domain.ErrInvalidTransition)
	}
	batch, err := s.sampler.SelectBatch(ctx, s.request.TopicID, s.request.Limit, s.request.Difficulty)
	if err != nil {
		return s.snapshotLocked(), err
	}
	s.loadBatchLocked(batch)
	return s.snapshotLocked(), nil
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Result returns the graded result once the session is completed.
func (s *Session) Result() (domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}, false
	}
	return *s.result, true
}

func (s *Session) loadBatchLocked(batch domain.Batch) {
	s.batch = batch
	s.answers = make([]*string, len(batch.Questions))
	s.current = 0
	s.score = 0
	s.result = nil
	s.record = nil
	s.pending = nil
	s.persistErr = nil
	s.state = StateInProgress
	s.updatedAt = s.now()
}

func (s *Session) submissionsLocked() []domain.AnswerSubmission {
	subs := make([]domain.AnswerSubmission, 0, len(s.answers))
	for i, answer := range s.answers {
		if answer == nil {
			continue
		}
		subs = append(subs, domain.AnswerSubmission{
			QuestionID:     s.batch.Questions[i].ID,
			SelectedAnswer: *answer,
		})
	}
	return subs
}

func (s *Session) persistLocked(ctx context.Context) error {
	if s.pending == nil {
		rec, err := s.recorder.Draft(s.userID, s.batch.Subject, s.batch.TopicID, *s.result)
		if err != nil {
			s.persistErr = err
			return err
		}
		s.pending = &rec
	}
	rec := *s.pending
	attempts, err := appendWithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.recorder.Append(ctx, rec)
	})
	s.updatedAt = s.now()
	if err != nil {
		s.persistErr = &domain.PersistenceError{Attempts: attempts, Err: err}
		return s.persistErr
	}
	s.record = &rec
	s.pending = nil
	s.persistErr = nil
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:      s.id,
		UserID:         s.userID,
		TopicID:        s.batch.TopicID,
		BatchID:        s.batch.ID,
		State:          s.state,
		CurrentIndex:   s.current,
		Score:          s.score,
		TotalQuestions: len(s.batch.Questions),
		Answered:       make([]bool, len(s.answers)),
		Questions:      make([]domain.QuestionView, len(s.batch.Questions)),
		Completed:      s.state == StateCompleted,
		Persisted:      s.record != nil,
		UpdatedAt:      s.updatedAt,
	}
	for i, answer := range s.answers {
		snap.Answered[i] = answer != nil
	}
	for i, q := range s.batch.Questions {
		snap.Questions[i] = q.View()
	}
	if s.result != nil {
		res := *s.result
		res.PerQuestion = append([]domain.QuestionResult(nil), s.result.PerQuestion...)
		snap.Result = &res
	}
	if s.record != nil {
		snap.RecordID = s.record.ID
	}
	if s.persistErr != nil {
		snap.PersistError = s.persistErr.Error()
	}
	return snap
}
