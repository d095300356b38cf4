package memory

import (
	"context"
	"sync"
	"time"

	"quiz-engine-service/internal/domain"
)

// BatchStore keeps served batches in memory until they expire.
type BatchStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	batches map[string]storedBatch
}

type storedBatch struct {
	batch     domain.Batch
	expiresAt time.Time
}

func NewBatchStore(ttl time.Duration) *BatchStore {
	return &BatchStore{
		ttl:     ttl,
		clock:   time.Now,
		batches: make(map[string]storedBatch),
	}
}

func (s *BatchStore) SaveBatch(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	s.evictLocked(now)
	s.batches[batch.ID] = storedBatch{batch: batch, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *BatchStore) GetBatch(_ context.Context, batchID string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[batchID]
	if !ok || (s.ttl > 0 && !entry.expiresAt.After(s.clock())) {
		delete(s.batches, batchID)
		return domain.Batch{}, domain.NewNotFoundError("batch", batchID)
	}
	return entry.batch, nil
}

func (s *BatchStore) evictLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, entry := range s.batches {
		if !entry.expiresAt.After(now) {
			delete(s.batches, id)
		}
	}
}
