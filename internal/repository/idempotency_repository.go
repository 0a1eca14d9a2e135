package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// IdempotencyStore remembers the outcome of proposals carrying a client
// idempotency key, so a retried submission returns the prior result instead
// of applying twice.
type IdempotencyStore interface {
	Get(ctx context.Context, entityID, key string) (*domain.ChangeResult, error)
	Put(ctx context.Context, entityID, key string, result *domain.ChangeResult, ttl time.Duration) error
}

type idempotencyStore struct {
	client *redis.Client
}

// NewIdempotencyStore builds the store.
func NewIdempotencyStore(client *redis.Client) IdempotencyStore {
	return &idempotencyStore{client: client}
}

func idempotencyKey(entityID, key string) string {
	return "idem:" + entityID + ":" + key
}

func (s *idempotencyStore) Get(ctx context.Context, entityID, key string) (*domain.ChangeResult, error) {
	payload, err := s.client.Get(ctx, idempotencyKey(entityID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var result domain.ChangeResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *idempotencyStore) Put(ctx context.Context, entityID, key string, result *domain.ChangeResult, ttl time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, idempotencyKey(entityID, key), payload, ttl).Err()
}
