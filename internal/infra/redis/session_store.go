package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/domain"
)

// SessionStore keeps active sessions as JSON values with a TTL so that
// abandoned sessions expire on their own and any instance can complete them.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewSessionStore(client *redis.Client, namespace string, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		prefix: namespace + "session:",
	}
}

func (s *SessionStore) Save(ctx context.Context, session *app.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key(session.ID), payload, s.ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*app.Session, error) {
	return s.decode(s.client.Get(ctx, s.key(sessionID)).Bytes())
}

// Take uses GETDEL so that two concurrent completions cannot both succeed.
func (s *SessionStore) Take(ctx context.Context, sessionID string) (*app.Session, error) {
	return s.decode(s.client.GetDel(ctx, s.key(sessionID)).Bytes())
}

func (s *SessionStore) decode(raw []byte, err error) (*app.Session, error) {
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session app.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}
