package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-engine-service/internal/domain"
)

// LedgerStore is an append-only in-memory implementation of app.LedgerRepository.
type LedgerStore struct {
	mu      sync.RWMutex
	records []domain.ProgressRecord
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

func (s *LedgerStore) Append(_ context.Context, rec domain.ProgressRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.ID == rec.ID {
			return nil
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *LedgerStore) ListByUser(_ context.Context, userID, subject string) ([]domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProgressRecord, 0)
	// Walk newest insertion first so the stable sort keeps later inserts ahead on equal timestamps.
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID != userID {
			continue
		}
		if subject != "" && rec.Subject != subject {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return out, nil
}

func (s *LedgerStore) Delete(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.records {
		if rec.ID != recordID {
			continue
		}
		if rec.UserID != userID {
			break
		}
		s.records = append(s.records[:i], s.records[i+1:]...)
		return nil
	}
	return domain.NewNotFoundError("progress record", recordID)
}
