package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-engine-service/internal/domain"
)

// BatchStore keeps served batches in Redis so any instance can grade a submission.
type BatchStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewBatchStore(client *redis.Client, ttl time.Duration) *BatchStore {
	return &BatchStore{client: client, ttl: ttl}
}

func (s *BatchStore) SaveBatch(ctx context.Context, batch domain.Batch) error {
	raw, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(batch.ID), raw, s.ttl).Err()
}

func (s *BatchStore) GetBatch(ctx context.Context, batchID string) (domain.Batch, error) {
	raw, err := s.client.Get(ctx, s.key(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Batch{}, domain.NewNotFoundError("batch", batchID)
	}
	if err != nil {
		return domain.Batch{}, err
	}
	var batch domain.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return domain.Batch{}, err
	}
	return batch, nil
}

func (s *BatchStore) key(batchID string) string {
	return "quiz:batch:" + batchID
}
