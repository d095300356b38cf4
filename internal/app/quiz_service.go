package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/metrics"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	// Save registers the session or refreshes its stored snapshot.
	Save(ctx context.Context, session *Session) error
	Get(sessionID string) (*Session, bool)
	Delete(ctx context.Context, sessionID string)
}

// BatchRepository keeps served batches so a later submission can be graded against them.
type BatchRepository interface {
	SaveBatch(ctx context.Context, batch domain.Batch) error
	GetBatch(ctx context.Context, batchID string) (domain.Batch, error)
}

// Limits clamps requested batch sizes.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits is used when no limits are configured.
var DefaultLimits = Limits{Default: 10, Max: 50}

// BatchRequest asks for a batch. Grade, when positive, overrides Difficulty via ScaleForGrade.
type BatchRequest struct {
	TopicID    string
	Limit      int
	Difficulty *domain.Difficulty
	Grade      int
}

// ProgressReport is the ledger view returned to clients.
type ProgressReport struct {
	Records []domain.ProgressRecord `json:"records"`
	Summary *domain.SubjectSummary  `json:"summary,omitempty"`
}

// QuizService contains the quiz use cases exposed to transports.
type QuizService struct {
	sampler  *Sampler
	ledger   *Ledger
	batches  BatchRepository
	sessions SessionRepository
	limits   Limits
	retry    RetryPolicy
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// ServiceConfig carries the optional QuizService settings.
type ServiceConfig struct {
	Limits  Limits
	Retry   RetryPolicy
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewQuizService(sampler *Sampler, ledger *Ledger, batches BatchRepository, sessions SessionRepository, cfg ServiceConfig) *QuizService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Limits.Default <= 0 {
		cfg.Limits.Default = DefaultLimits.Default
	}
	if cfg.Limits.Max <= 0 {
		cfg.Limits.Max = DefaultLimits.Max
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &QuizService{
		sampler:  sampler,
		ledger:   ledger,
		batches:  batches,
		sessions: sessions,
		limits:   cfg.Limits,
		retry:    cfg.Retry,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// ServeBatch selects a batch and keeps it for grading.
func (s *QuizService) ServeBatch(ctx context.Context, req BatchRequest) (domain.Batch, error) {
	limit := s.clampLimit(req.Limit)

	var (
		batch domain.Batch
		err   error
	)
	if req.Grade > 0 {
		batch, err = s.sampler.SelectBatchForGrade(ctx, req.TopicID, limit, req.Grade)
	} else {
		batch, err = s.sampler.SelectBatch(ctx, req.TopicID, limit, req.Difficulty)
	}
	if err != nil {
		return domain.Batch{}, err
	}
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return domain.Batch{}, err
	}
	return batch, nil
}

// Submit grades answers against a previously served batch.
func (s *QuizService) Submit(ctx context.Context, batchID string, submissions []domain.AnswerSubmission) (domain.Batch, domain.Result, error) {
	batch, err := s.batches.GetBatch(ctx, batchID)
	if err != nil {
		return domain.Batch{}, domain.Result{}, err
	}
	result, err := Grade(batch, submissions)
	if err != nil {
		return domain.Batch{}, domain.Result{}, err
	}
	s.metrics.Graded(result.Percentage)
	return batch, result, nil
}

// RecordProgress appends a result to the user's ledger, retrying transient
// storage failures. Exhausted retries surface as a PersistenceError.
func (s *QuizService) RecordProgress(ctx context.Context, userID, subject, topicID string, result domain.Result) (domain.ProgressRecord, error) {
	rec, err := s.ledger.Draft(userID, subject, topicID, result)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	attempts, err := appendWithRetry(ctx, s.retry, func(ctx context.Context) error {
		return s.ledger.Append(ctx, rec)
	})
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, context.Canceled) {
		return domain.ProgressRecord{}, err
	}
	s.logger.Error("progress not recorded",
		zap.String("user_id", userID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return domain.ProgressRecord{}, &domain.PersistenceError{Attempts: attempts, Err: err}
}

// Progress lists records and, when a subject is given, its summary.
func (s *QuizService) Progress(ctx context.Context, userID, subject string) (ProgressReport, error) {
	records, err := s.ledger.Query(ctx, userID, subject)
	if err != nil {
		return ProgressReport{}, err
	}
	report := ProgressReport{Records: records}
	if subject != "" {
		summary := Summarize(subject, records)
		report.Summary = &summary
	}
	return report, nil
}

// Overview returns the user's aggregates across subjects.
func (s *QuizService) Overview(ctx context.Context, userID string) (domain.Overview, error) {
	return s.ledger.Overview(ctx, userID)
}

// RemoveProgress deletes one of the user's records.
func (s *QuizService) RemoveProgress(ctx context.Context, userID, recordID string) error {
	return s.ledger.Remove(ctx, userID, recordID)
}

// OpenSession creates an empty session owned by userID.
func (s *QuizService) OpenSession(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}
	session := NewSession(uuid.NewString(), userID, SessionConfig{
		Sampler:  s.sampler,
		Recorder: s.ledger,
		Retry:    s.retry,
	})
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.SessionEvent("opened")
	return session, nil
}

// StartSession draws the first batch for a session.
func (s *QuizService) StartSession(ctx context.Context, sessionID string, req TopicRequest) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	req.Limit = s.clampLimit(req.Limit)
	snap, err := session.Start(ctx, req)
	if err != nil {
		s.logger.Warn("session start failed", zap.String("session_id", sessionID), zap.Error(err))
		return snap, err
	}
	s.metrics.SessionEvent("started")
	return snap, s.sessions.Save(ctx, session)
}

// AnswerSession records an answer and returns immediate feedback.
func (s *QuizService) AnswerSession(ctx context.Context, sessionID string, index int, choice string) (Feedback, Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Feedback{}, Snapshot{}, err
	}
	fb, err := session.Answer(index, choice)
	if err != nil {
		return Feedback{}, session.Snapshot(), err
	}
	return fb, session.Snapshot(), s.sessions.Save(ctx, session)
}

// AdvanceSession moves forward and finalizes the attempt after the last question.
func (s *QuizService) AdvanceSession(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := session.Advance(ctx)
	if snap.Completed && snap.Result != nil && (err == nil || errors.Is(err, domain.ErrPersistence)) {
		s.metrics.SessionEvent("completed")
		s.metrics.Graded(snap.Result.Percentage)
	}
	if err != nil {
		s.logger.Warn("session advance failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil && err == nil {
		err = saveErr
	}
	return snap, err
}

// RetrySession restarts the session with a fresh batch.
func (s *QuizService) RetrySession(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := session.Retry(ctx)
	if err != nil {
		return snap, err
	}
	s.metrics.SessionEvent("retried")
	return snap, s.sessions.Save(ctx, session)
}

// PersistSession retries saving a completed session's result.
func (s *QuizService) PersistSession(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := session.PersistResult(ctx)
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil && err == nil {
		err = saveErr
	}
	return snap, err
}

// SessionSnapshot returns the current view of a session.
func (s *QuizService) SessionSnapshot(sessionID string) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// CloseSession drops a session. Unfinished attempts are not persisted.
func (s *QuizService) CloseSession(ctx context.Context, sessionID string) {
	if _, ok := s.sessions.Get(sessionID); !ok {
		return
	}
	s.sessions.Delete(ctx, sessionID)
	s.metrics.SessionEvent("closed")
}

func (s *QuizService) session(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *QuizService) clampLimit(limit int) int {
	switch {
	case limit == 0:
		return s.limits.Default
	case limit > s.limits.Max:
		return s.limits.Max
	}
	return limit
}
