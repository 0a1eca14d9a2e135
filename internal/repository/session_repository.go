package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// ErrSessionNotFound is returned when a session key has expired or never
// existed. Callers treat it as expiry, not failure.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository keeps advisory editing sessions in Redis. Each session
// is a hash with a TTL equal to the heartbeat window; per-entity membership
// sets are pruned lazily when a listed session's hash is gone.
type SessionRepository interface {
	Start(ctx context.Context, session *domain.EditingSession, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*domain.EditingSession, error)
	Heartbeat(ctx context.Context, sessionID string, ttl time.Duration) (*domain.EditingSession, error)
	End(ctx context.Context, sessionID string) error
	ListByEntity(ctx context.Context, entityID string) ([]domain.EditingSession, error)
	Sweep(ctx context.Context) (int, error)
}

type sessionRepository struct {
	client *redis.Client
}

// NewSessionRepository builds repository.
func NewSessionRepository(client *redis.Client) SessionRepository {
	return &sessionRepository{client: client}
}

func sessionKey(id string) string       { return "session:" + id }
func entitySessionsKey(id string) string { return "entity-sessions:" + id }

func (r *sessionRepository) Start(ctx context.Context, session *domain.EditingSession, ttl time.Duration) error {
	key := sessionKey(session.ID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"entity_id":         session.EntityID,
		"actor":             session.Actor,
		"started_at":        session.StartedAt.Format(time.RFC3339Nano),
		"last_heartbeat_at": session.LastHeartbeatAt.Format(time.RFC3339Nano),
		"expires_at":        session.ExpiresAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, entitySessionsKey(session.EntityID), session.ID)
	pipe.Expire(ctx, entitySessionsKey(session.EntityID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, sessionID string) (*domain.EditingSession, error) {
	values, err := r.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrSessionNotFound
	}
	return sessionFromHash(sessionID, values)
}

// Heartbeat refreshes the TTL and timestamps of a live session. A missing
// key means the session lapsed; the caller may start a fresh one.
func (r *sessionRepository) Heartbeat(ctx context.Context, sessionID string, ttl time.Duration) (*domain.EditingSession, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session.LastHeartbeatAt = now
	session.ExpiresAt = now.Add(ttl)

	key := sessionKey(sessionID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"last_heartbeat_at": session.LastHeartbeatAt.Format(time.RFC3339Nano),
		"expires_at":        session.ExpiresAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, ttl)
	pipe.Expire(ctx, entitySessionsKey(session.EntityID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepository) End(ctx context.Context, sessionID string) error {
	session, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.SRem(ctx, entitySessionsKey(session.EntityID), sessionID)
	_, err = pipe.Exec(ctx)
	return err
}

// ListByEntity returns live sessions for an entity, lazily removing set
// members whose session hash already expired.
func (r *sessionRepository) ListByEntity(ctx context.Context, entityID string) ([]domain.EditingSession, error) {
	ids, err := r.client.SMembers(ctx, entitySessionsKey(entityID)).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var sessions []domain.EditingSession
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if errors.Is(err, ErrSessionNotFound) {
			r.client.SRem(ctx, entitySessionsKey(entityID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if session.Expired(now) {
			r.client.SRem(ctx, entitySessionsKey(entityID), id)
			r.client.Del(ctx, sessionKey(id))
			continue
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}

// Sweep scans all entity membership sets and drops references to expired
// sessions. Optional: lazy expiry on read is the correctness mechanism.
func (r *sessionRepository) Sweep(ctx context.Context) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, "entity-sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		ids, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			exists, err := r.client.Exists(ctx, sessionKey(id)).Result()
			if err != nil {
				return removed, err
			}
			if exists == 0 {
				r.client.SRem(ctx, setKey, id)
				removed++
			}
		}
	}
	return removed, iter.Err()
}

func sessionFromHash(id string, values map[string]string) (*domain.EditingSession, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, values["started_at"])
	if err != nil {
		return nil, err
	}
	lastHeartbeat, err := time.Parse(time.RFC3339Nano, values["last_heartbeat_at"])
	if err != nil {
		return nil, err
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, values["expires_at"])
	if err != nil {
		return nil, err
	}
	return &domain.EditingSession{
		ID:              id,
		EntityID:        values["entity_id"],
		Actor:           values["actor"],
		StartedAt:       startedAt,
		LastHeartbeatAt: lastHeartbeat,
		ExpiresAt:       expiresAt,
	}, nil
}
