package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

func newEntityService(fix *engineFixture) *EntityService {
	return NewEntityService(EntityDependencies{
		EntityRepo: fix.store.entityRepo(),
		Change:     fix.change,
		Logger:     zap.NewNop(),
	})
}

func TestCreateEntityWithInitialFields(t *testing.T) {
	fix := newEngineFixture(t, nil)
	svc := newEntityService(fix)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, "alice", map[string]any{"title": "draft", "body": "hello"})
	require.NoError(t, err)

	// Initial values land as the first audited change on top of the empty
	// version 0 baseline.
	assert.Equal(t, int64(1), entity.Version)
	assert.Equal(t, "draft", entity.Fields["title"])

	entries := fix.store.auditFor(entity.ID)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, int64(0), entry.VersionBefore)
		assert.Equal(t, int64(1), entry.VersionAfter)
		assert.Nil(t, entry.OldValue)
		assert.Equal(t, "alice", entry.Actor)
	}

	// Replay from the creation baseline reproduces the full state.
	replayed, err := fix.history.Replay(ctx, entity.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.Fields, replayed)
}

func TestCreateEntityWithoutFields(t *testing.T) {
	fix := newEngineFixture(t, nil)
	svc := newEntityService(fix)

	entity, err := svc.CreateEntity(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Zero(t, entity.Version)
	assert.Empty(t, entity.Fields)
	assert.Empty(t, fix.store.auditFor(entity.ID))
}

func TestCreateEntityRequiresActor(t *testing.T) {
	fix := newEngineFixture(t, nil)
	svc := newEntityService(fix)

	_, err := svc.CreateEntity(context.Background(), "", map[string]any{"title": "x"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetEntityState(t *testing.T) {
	fix := newEngineFixture(t, nil)
	svc := newEntityService(fix)
	ctx := context.Background()

	entity := fix.createEntity(t, map[string]any{"title": "draft"})
	got, err := svc.GetEntityState(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.Version, got.Version)
	assert.Equal(t, entity.Fields, got.Fields)

	_, err = svc.GetEntityState(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
