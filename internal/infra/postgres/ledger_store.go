package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-engine-service/internal/domain"
)

// LedgerStore is the append-only progress ledger. seq orders records inserted
// within the same timestamp.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) Append(ctx context.Context, rec domain.ProgressRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO progress_records (id, user_id, subject, topic_id, score, total_questions, percentage, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Subject, rec.TopicID, rec.Score, rec.TotalQuestions, rec.Percentage, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("append progress record: %w", err)
	}
	return nil
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID, subject string) ([]domain.ProgressRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, subject, topic_id, score, total_questions, percentage, recorded_at
		 FROM progress_records
		 WHERE user_id=$1 AND ($2 = '' OR subject=$2)
		 ORDER BY recorded_at DESC, seq DESC`, userID, subject)
	if err != nil {
		return nil, fmt.Errorf("list progress records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProgressRecord, 0)
	for rows.Next() {
		var rec domain.ProgressRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Subject, &rec.TopicID, &rec.Score,
			&rec.TotalQuestions, &rec.Percentage, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.RecordedAt = rec.RecordedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *LedgerStore) Delete(ctx context.Context, userID, recordID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM progress_records WHERE id=$1 AND user_id=$2`, recordID, userID)
	if err != nil {
		return fmt.Errorf("delete progress record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("progress record", recordID)
	}
	return nil
}
