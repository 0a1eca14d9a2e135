package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/events"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

type sessionFixture struct {
	*engineFixture
	sessions *SessionService
	mr       *miniredis.Miniredis
	ttl      time.Duration
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	engine := newEngineFixture(t, nil)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	ttl := time.Minute
	return &sessionFixture{
		engineFixture: engine,
		mr:            mr,
		ttl:           ttl,
		sessions: NewSessionService(SessionDependencies{
			SessionRepo: repository.NewSessionRepository(client),
			EntityRepo:  engine.store.entityRepo(),
			AuditRepo:   engine.store.auditRepo(),
			Dispatcher:  events.NewInMemoryDispatcher(logger),
			Logger:      logger,
			TTL:         ttl,
		}),
	}
}

func isSessionExpired(err error) bool {
	domainErr := apperrors.ToDomainError(err)
	return domainErr != nil && domainErr.Code == "SESSION_EXPIRED"
}

func TestStartSessionUnknownEntity(t *testing.T) {
	fix := newSessionFixture(t)
	_, err := fix.sessions.StartSession(context.Background(), "missing", "alice")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStartSessionRequiresActor(t *testing.T) {
	fix := newSessionFixture(t)
	entity := fix.createEntity(t, map[string]any{"title": "draft"})
	_, err := fix.sessions.StartSession(context.Background(), entity.ID, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSessionHeartbeatKeepsSessionLive(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft"})

	session, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)

	refreshed, err := fix.sessions.Heartbeat(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, refreshed.ID)
	assert.False(t, refreshed.ExpiresAt.Before(session.ExpiresAt))
}

func TestHeartbeatAfterTTLReturnsSessionExpired(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft"})

	session, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)

	fix.mr.FastForward(fix.ttl + time.Second)

	_, err = fix.sessions.Heartbeat(ctx, session.ID)
	assert.True(t, isSessionExpired(err), "expected session expired, got %v", err)
}

func TestEndSessionIsIdempotentAfterExpiry(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft"})

	session, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)
	fix.mr.FastForward(fix.ttl + time.Second)

	assert.NoError(t, fix.sessions.EndSession(ctx, session.ID))
}

func TestActiveSessionsCarryConflictRiskHints(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft", "body": "hello"})

	_, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)
	_, err = fix.sessions.StartSession(ctx, entity.ID, "bob")
	require.NoError(t, err)

	// Alice edits while her session is live; bob only watches.
	_, err = fix.change.SubmitChange(ctx, domain.ChangeProposal{
		EntityID:     entity.ID,
		BaseVersion:  entity.Version,
		FieldChanges: map[string]any{"title": "by-alice"},
		Actor:        "alice",
	})
	require.NoError(t, err)

	presences, err := fix.sessions.ActiveSessions(ctx, entity.ID)
	require.NoError(t, err)
	require.Len(t, presences, 2)

	byActor := make(map[string][]string, 2)
	for _, presence := range presences {
		byActor[presence.Session.Actor] = presence.RecentlyTouchedField
	}
	assert.Equal(t, []string{"title"}, byActor["alice"])
	assert.Empty(t, byActor["bob"])
}

func TestExpiredSessionDoesNotGateWrites(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft"})

	_, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)
	fix.mr.FastForward(fix.ttl + time.Second)

	// Sessions are advisory: a lapsed session never blocks the version
	// compare-and-swap path.
	result, err := fix.change.SubmitChange(ctx, domain.ChangeProposal{
		EntityID:     entity.ID,
		BaseVersion:  entity.Version,
		FieldChanges: map[string]any{"title": "still lands"},
		Actor:        "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, result.Outcome)
}

func TestSweepExpiredCountsRemovals(t *testing.T) {
	fix := newSessionFixture(t)
	ctx := context.Background()
	entity := fix.createEntity(t, map[string]any{"title": "draft"})

	session, err := fix.sessions.StartSession(ctx, entity.ID, "alice")
	require.NoError(t, err)
	_, err = fix.sessions.StartSession(ctx, entity.ID, "bob")
	require.NoError(t, err)

	fix.mr.Del("session:" + session.ID)

	removed, err := fix.sessions.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
