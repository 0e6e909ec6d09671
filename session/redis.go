package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyflow/notifyflow/engine"
)

// RedisStore keeps flow state in redis, JSON-encoded under a namespaced
// slot key. The TTL bounds how long an abandoned flow lingers; every Put
// refreshes it, mirroring session expiry.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedisStore(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisStore) key(sessionID string, taskID int) string {
	return fmt.Sprintf("%s:flow:%s:%d", s.namespace, sessionID, taskID)
}

func (s *RedisStore) Get(ctx context.Context, sessionID string, taskID int) (*engine.FlowState, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading flow state: %w", err)
	}
	var state engine.FlowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding flow state: %w", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, taskID int, state *engine.FlowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding flow state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID, taskID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing flow state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string, taskID int) error {
	if err := s.client.Del(ctx, s.key(sessionID, taskID)).Err(); err != nil {
		return fmt.Errorf("clearing flow state: %w", err)
	}
	return nil
}
