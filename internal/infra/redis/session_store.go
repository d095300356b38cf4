package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-engine-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Live sessions stay in a local map since their state machine is in-process;
// every save mirrors the snapshot to Redis so other instances can inspect it.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *app.Session) error {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	raw, err := json.Marshal(session.Snapshot())
	if err != nil {
		return err
	}
	// best-effort mirror
	_ = s.client.Set(ctx, s.key(session.ID()), raw, s.ttl).Err()
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
}

// Mirrored reads the last snapshot saved by any instance.
func (s *SessionStore) Mirrored(ctx context.Context, sessionID string) (app.Snapshot, bool) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return app.Snapshot{}, false
	}
	var snap app.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return app.Snapshot{}, false
	}
	return snap, true
}

func (s *SessionStore) key(sessionID string) string {
	return "quiz:session:" + sessionID
}
