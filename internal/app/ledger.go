package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-engine-service/internal/domain"
	"quiz-engine-service/internal/metrics"
)

// trendWindow bounds how many recent percentages a summary reports.
const trendWindow = 10

// LedgerRepository stores progress records append-only.
type LedgerRepository interface {
	// Append is idempotent on rec.ID: storing an id that already exists is a no-op.
	Append(ctx context.Context, rec domain.ProgressRecord) error
	// ListByUser returns records newest first, ties broken by later insertion first.
	// An empty subject matches every subject.
	ListByUser(ctx context.Context, userID, subject string) ([]domain.ProgressRecord, error)
	// Delete returns a NotFoundError when the record is missing or owned by another user.
	Delete(ctx context.Context, userID, recordID string) error
}

// Ledger is the progress ledger: it appends graded attempts and derives aggregates from them.
type Ledger struct {
	repo    LedgerRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

func NewLedger(repo LedgerRepository, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, logger: logger, metrics: m, clock: time.Now}
}

// NewLedgerWithClock is test-only for deterministic timestamps.
func NewLedgerWithClock(repo LedgerRepository, now func() time.Time) *Ledger {
	l := NewLedger(repo, nil, nil)
	l.clock = now
	return l
}

// Record appends a new record for a graded result.
func (l *Ledger) Record(ctx context.Context, userID, subject, topicID string, result domain.Result) (domain.ProgressRecord, error) {
	rec, err := l.Draft(userID, subject, topicID, result)
	if err != nil {
		return domain.ProgressRecord{}, err
	}
	if err := l.Append(ctx, rec); err != nil {
		return domain.ProgressRecord{}, err
	}
	return rec, nil
}

// Draft validates a result and stamps it with a fresh id and timestamp
// without storing it. Appending the same draft again stores it at most once.
func (l *Ledger) Draft(userID, subject, topicID string, result domain.Result) (domain.ProgressRecord, error) {
	if userID == "" {
		return domain.ProgressRecord{}, domain.NewValidationError("userId", "is required")
	}
	if subject == "" {
		return domain.ProgressRecord{}, domain.NewValidationError("subject", "is required")
	}
	if result.Percentage < 0 || result.Percentage > 100 {
		return domain.ProgressRecord{}, domain.NewValidationError("percentage", "must be within 0..100")
	}
	if result.Score < 0 || result.TotalQuestions < 0 {
		return domain.ProgressRecord{}, domain.NewValidationError("result", "score and totalQuestions must not be negative")
	}
	return domain.ProgressRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Subject:        subject,
		TopicID:        topicID,
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		Percentage:     result.Percentage,
		RecordedAt:     l.clock().UTC(),
	}, nil
}

// Append stores a drafted record.
func (l *Ledger) Append(ctx context.Context, rec domain.ProgressRecord) error {
	err := l.repo.Append(ctx, rec)
	l.metrics.LedgerWrite(err)
	if err != nil {
		return err
	}
	l.logger.Info("progress recorded",
		zap.String("record_id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.String("subject", rec.Subject),
		zap.Int("percentage", rec.Percentage),
	)
	return nil
}

// Query lists a user's records, newest first, optionally for one subject.
func (l *Ledger) Query(ctx context.Context, userID, subject string) ([]domain.ProgressRecord, error) {
	if userID == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}
	return l.repo.ListByUser(ctx, userID, subject)
}

// Remove deletes one of the caller's records.
func (l *Ledger) Remove(ctx context.Context, userID, recordID string) error {
	if userID == "" {
		return domain.NewValidationError("userId", "is required")
	}
	return l.repo.Delete(ctx, userID, recordID)
}

// Summary aggregates a subject from the current records; nothing is cached.
func (l *Ledger) Summary(ctx context.Context, userID, subject string) (domain.SubjectSummary, error) {
	if subject == "" {
		return domain.SubjectSummary{}, domain.NewValidationError("subject", "is required")
	}
	records, err := l.Query(ctx, userID, subject)
	if err != nil {
		return domain.SubjectSummary{}, err
	}
	return Summarize(subject, records), nil
}

// Overview aggregates every subject the user has records for.
func (l *Ledger) Overview(ctx context.Context, userID string) (domain.Overview, error) {
	records, err := l.Query(ctx, userID, "")
	if err != nil {
		return domain.Overview{}, err
	}

	bySubject := make(map[string][]domain.ProgressRecord)
	var subjects []string
	total := 0
	for _, rec := range records {
		if _, ok := bySubject[rec.Subject]; !ok {
			subjects = append(subjects, rec.Subject)
		}
		bySubject[rec.Subject] = append(bySubject[rec.Subject], rec)
		total += rec.Percentage
	}
	sort.Strings(subjects)

	overview := domain.Overview{
		UserID:   userID,
		Attempts: len(records),
		Subjects: make([]domain.SubjectSummary, 0, len(subjects)),
	}
	if len(records) > 0 {
		overview.GlobalAccuracy = float64(total) / float64(len(records))
	}
	for _, subject := range subjects {
		overview.Subjects = append(overview.Subjects, Summarize(subject, bySubject[subject]))
	}
	return overview, nil
}

// Summarize computes aggregates from records ordered newest first.
func Summarize(subject string, records []domain.ProgressRecord) domain.SubjectSummary {
	summary := domain.SubjectSummary{Subject: subject, Attempts: len(records), Trend: []int{}}
	if len(records) == 0 {
		return summary
	}

	total := 0
	for i, rec := range records {
		total += rec.Percentage
		if i == 0 || rec.Score > summary.BestScore {
			summary.BestScore = rec.Score
		}
		if i == 0 || rec.Percentage > summary.BestPercentage {
			summary.BestPercentage = rec.Percentage
		}
	}
	summary.AverageAccuracy = float64(total) / float64(len(records))

	n := len(records)
	if n > trendWindow {
		n = trendWindow
	}
	for i := n - 1; i >= 0; i-- {
		summary.Trend = append(summary.Trend, records[i].Percentage)
	}
	return summary
}

// RetryPolicy bounds how persistence of a graded result is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// appendWithRetry retries transient ledger failures with exponential backoff.
// Validation failures are permanent. The returned count is the number of attempts made.
func appendWithRetry(ctx context.Context, policy RetryPolicy, appendFn func(context.Context) error) (int, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialInterval
	if policy.MaxInterval > 0 {
		eb.MaxInterval = policy.MaxInterval
	}
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(policy.MaxAttempts-1)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := appendFn(ctx)
		if err != nil && (errors.Is(err, domain.ErrValidation) || errors.Is(err, context.Canceled)) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
	return attempts, err
}
