package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-engine/internal/domain"
)

func newSessionRepo(t *testing.T) (SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionRepository(client), mr
}

func newSession(entityID, actor string, ttl time.Duration) *domain.EditingSession {
	now := time.Now().UTC()
	return &domain.EditingSession{
		ID:              "sess-" + actor,
		EntityID:        entityID,
		Actor:           actor,
		StartedAt:       now,
		LastHeartbeatAt: now,
		ExpiresAt:       now.Add(ttl),
	}
}

func TestSessionStartAndGet(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	session := newSession("entity-1", "alice", ttl)
	require.NoError(t, repo.Start(ctx, session, ttl))

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.EntityID, got.EntityID)
	assert.Equal(t, "alice", got.Actor)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestSessionGetMissing(t *testing.T) {
	repo, _ := newSessionRepo(t)
	_, err := repo.Get(context.Background(), "never-started")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiresWithTTL(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	session := newSession("entity-1", "alice", ttl)
	require.NoError(t, repo.Start(ctx, session, ttl))

	mr.FastForward(ttl + time.Second)

	_, err := repo.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionHeartbeatExtendsTTL(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	session := newSession("entity-1", "alice", ttl)
	require.NoError(t, repo.Start(ctx, session, ttl))

	// Heartbeat just before expiry keeps the session alive past the
	// original window.
	mr.FastForward(ttl - time.Second)
	refreshed, err := repo.Heartbeat(ctx, session.ID, ttl)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(session.ExpiresAt))

	mr.FastForward(2 * time.Second)
	_, err = repo.Get(ctx, session.ID)
	require.NoError(t, err)
}

func TestSessionHeartbeatAfterExpiry(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	session := newSession("entity-1", "alice", ttl)
	require.NoError(t, repo.Start(ctx, session, ttl))
	mr.FastForward(ttl + time.Second)

	_, err := repo.Heartbeat(ctx, session.ID, ttl)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionEndRemovesMembership(t *testing.T) {
	repo, _ := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	alice := newSession("entity-1", "alice", ttl)
	bob := newSession("entity-1", "bob", ttl)
	require.NoError(t, repo.Start(ctx, alice, ttl))
	require.NoError(t, repo.Start(ctx, bob, ttl))

	require.NoError(t, repo.End(ctx, alice.ID))

	sessions, err := repo.ListByEntity(ctx, "entity-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", sessions[0].Actor)

	// Ending twice is a no-op.
	require.NoError(t, repo.End(ctx, alice.ID))
}

func TestSessionListPrunesLapsedMembers(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	alice := newSession("entity-1", "alice", ttl)
	bob := newSession("entity-1", "bob", ttl)
	require.NoError(t, repo.Start(ctx, alice, ttl))
	require.NoError(t, repo.Start(ctx, bob, ttl))

	// Simulate alice's hash expiring while the membership set survives.
	mr.Del("session:" + alice.ID)

	sessions, err := repo.ListByEntity(ctx, "entity-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bob", sessions[0].Actor)

	// The stale member is gone from the set as well.
	sessions, err = repo.ListByEntity(ctx, "entity-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSessionSweepDropsDanglingReferences(t *testing.T) {
	repo, mr := newSessionRepo(t)
	ctx := context.Background()
	ttl := time.Minute

	alice := newSession("entity-1", "alice", ttl)
	bob := newSession("entity-2", "bob", ttl)
	require.NoError(t, repo.Start(ctx, alice, ttl))
	require.NoError(t, repo.Start(ctx, bob, ttl))

	mr.Del("session:" + alice.ID)

	removed, err := repo.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	sessions, err := repo.ListByEntity(ctx, "entity-2")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
