package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/repository"
)

// fakeStore is an in-memory stand-in for the Postgres-backed repositories.
// It mirrors the transactional contract of ApplyIfCurrent: the version CAS,
// audit entries, and interval snapshot succeed or fail together under one
// lock. Interface-specific views are exposed through the small wrapper
// types below, since the repository interfaces reuse method names.
type fakeStore struct {
	mu        sync.Mutex
	entities  map[string]*domain.Entity
	audit     []domain.AuditEntry
	snapshots map[string]map[int64]domain.VersionSnapshot
	conflicts map[string]*domain.Conflict
	bulkOps   map[string]*domain.BulkOperation

	applyFailures int
	applyFailErr  error
	bulkGetErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:  make(map[string]*domain.Entity),
		snapshots: make(map[string]map[int64]domain.VersionSnapshot),
		conflicts: make(map[string]*domain.Conflict),
		bulkOps:   make(map[string]*domain.BulkOperation),
	}
}

func (f *fakeStore) entityRepo() repository.EntityRepository     { return fakeEntityRepo{f} }
func (f *fakeStore) auditRepo() repository.AuditRepository       { return fakeAuditRepo{f} }
func (f *fakeStore) snapshotRepo() repository.SnapshotRepository { return fakeSnapshotRepo{f} }
func (f *fakeStore) conflictRepo() repository.ConflictRepository { return fakeConflictRepo{f} }
func (f *fakeStore) bulkRepo() repository.BulkRepository         { return fakeBulkRepo{f} }

// failNextApplies makes the next n ApplyIfCurrent calls fail with err.
func (f *fakeStore) failNextApplies(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyFailures = n
	f.applyFailErr = err
}

func (f *fakeStore) auditFor(entityID string) []domain.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditEntry
	for _, entry := range f.audit {
		if entry.EntityID == entityID {
			result = append(result, entry)
		}
	}
	return result
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		out[name] = value
	}
	return out
}

func copyEntity(entity *domain.Entity) *domain.Entity {
	clone := *entity
	clone.Fields = copyFields(entity.Fields)
	return &clone
}

type fakeEntityRepo struct{ store *fakeStore }

func (r fakeEntityRepo) Create(ctx context.Context, entity *domain.Entity) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	entity.ID = uuid.NewString()
	entity.Fields = map[string]any{}
	entity.Version = 0
	entity.CreatedAt = time.Now().UTC()
	entity.UpdatedAt = entity.CreatedAt
	f.entities[entity.ID] = copyEntity(entity)
	return nil
}

func (r fakeEntityRepo) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyEntity(entity), nil
}

func (r fakeEntityRepo) ApplyIfCurrent(ctx context.Context, change repository.ApplyChange) (int64, bool, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.applyFailures > 0 {
		f.applyFailures--
		return 0, false, f.applyFailErr
	}

	entity, ok := f.entities[change.EntityID]
	if !ok || entity.Version != change.BaseVersion {
		return 0, false, nil
	}

	newVersion := entity.Version + 1
	for name, value := range change.FieldChanges {
		entity.Fields[name] = value
	}
	entity.Version = newVersion
	entity.UpdatedAt = time.Now().UTC()

	for _, diff := range change.Diffs {
		f.audit = append(f.audit, domain.AuditEntry{
			ID:            uuid.NewString(),
			EntityID:      change.EntityID,
			VersionBefore: newVersion - 1,
			VersionAfter:  newVersion,
			FieldName:     diff.FieldName,
			OldValue:      diff.OldValue,
			NewValue:      diff.NewValue,
			Actor:         change.Actor,
			Origin:        change.Origin,
			CreatedAt:     time.Now().UTC(),
		})
	}

	if change.SnapshotInterval > 0 && newVersion%change.SnapshotInterval == 0 {
		if f.snapshots[change.EntityID] == nil {
			f.snapshots[change.EntityID] = make(map[int64]domain.VersionSnapshot)
		}
		f.snapshots[change.EntityID][newVersion] = domain.VersionSnapshot{
			EntityID:  change.EntityID,
			Version:   newVersion,
			Fields:    copyFields(entity.Fields),
			CreatedAt: time.Now().UTC(),
		}
	}
	return newVersion, true, nil
}

type fakeAuditRepo struct{ store *fakeStore }

func (r fakeAuditRepo) ListRange(ctx context.Context, entityID string, fromVersion, toVersion int64) ([]domain.AuditEntry, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditEntry
	for _, entry := range f.audit {
		if entry.EntityID == entityID && entry.VersionAfter > fromVersion && entry.VersionAfter <= toVersion {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r fakeAuditRepo) ListSince(ctx context.Context, entityID string, sinceVersion int64) ([]domain.AuditEntry, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditEntry
	for _, entry := range f.audit {
		if entry.EntityID == entityID && entry.VersionAfter > sinceVersion {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (r fakeAuditRepo) ListRecent(ctx context.Context, entityID string, since time.Time) ([]domain.AuditEntry, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.AuditEntry
	for _, entry := range f.audit {
		if entry.EntityID == entityID && !entry.CreatedAt.Before(since) {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeSnapshotRepo struct{ store *fakeStore }

func (r fakeSnapshotRepo) Create(ctx context.Context, snapshot *domain.VersionSnapshot) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshots[snapshot.EntityID] == nil {
		f.snapshots[snapshot.EntityID] = make(map[int64]domain.VersionSnapshot)
	}
	f.snapshots[snapshot.EntityID][snapshot.Version] = *snapshot
	return nil
}

func (r fakeSnapshotRepo) LatestAtOrBelow(ctx context.Context, entityID string, version int64) (*domain.VersionSnapshot, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.VersionSnapshot
	for v, snapshot := range f.snapshots[entityID] {
		if v <= version && (best == nil || v > best.Version) {
			s := snapshot
			best = &s
		}
	}
	return best, nil
}

type fakeConflictRepo struct{ store *fakeStore }

func (r fakeConflictRepo) CreateMany(ctx context.Context, conflicts []domain.Conflict) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range conflicts {
		c := conflicts[i]
		f.conflicts[c.ID] = &c
	}
	return nil
}

func (r fakeConflictRepo) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (r fakeConflictRepo) ListByEntity(ctx context.Context, entityID string, onlyOpen bool) ([]domain.Conflict, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Conflict
	for _, c := range f.conflicts {
		if c.EntityID != entityID {
			continue
		}
		if onlyOpen && !c.Open() {
			continue
		}
		result = append(result, *c)
	}
	return result, nil
}

func (r fakeConflictRepo) ListOpenByFields(ctx context.Context, entityID string, fields []string) ([]domain.Conflict, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[string]struct{}, len(fields))
	for _, name := range fields {
		wanted[name] = struct{}{}
	}
	var result []domain.Conflict
	for _, c := range f.conflicts {
		if c.EntityID != entityID || !c.Open() {
			continue
		}
		if _, ok := wanted[c.FieldName]; ok {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (r fakeConflictRepo) Resolve(ctx context.Context, id string, status domain.ConflictStatus, strategy *domain.ResolutionStrategy, resolvedBy string, resolvedAt time.Time) (bool, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok || c.Status != domain.ConflictUnresolved {
		return false, nil
	}
	c.Status = status
	c.Strategy = strategy
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &resolvedAt
	return true, nil
}

func (r fakeConflictRepo) Reopen(ctx context.Context, id string) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conflicts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.Status = domain.ConflictUnresolved
	c.Strategy = nil
	c.ResolvedBy = nil
	c.ResolvedAt = nil
	return nil
}

type fakeBulkRepo struct{ store *fakeStore }

func (r fakeBulkRepo) CreateOperation(ctx context.Context, op *domain.BulkOperation) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	op.StartedAt = time.Now().UTC()
	clone := *op
	f.bulkOps[op.ID] = &clone
	return nil
}

func (r fakeBulkRepo) AddItem(ctx context.Context, bulkID string, item domain.BulkItemResult) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.bulkOps[bulkID]
	if !ok {
		return pgx.ErrNoRows
	}
	op.Items = append(op.Items, item)
	return nil
}

func (r fakeBulkRepo) Finalize(ctx context.Context, bulkID string, completedAt time.Time) error {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.bulkOps[bulkID]
	if !ok {
		return pgx.ErrNoRows
	}
	op.CompletedAt = &completedAt
	return nil
}

func (r fakeBulkRepo) GetByID(ctx context.Context, id string) (*domain.BulkOperation, error) {
	f := r.store
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkGetErr != nil {
		return nil, f.bulkGetErr
	}
	op, ok := f.bulkOps[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *op
	clone.Items = append([]domain.BulkItemResult(nil), op.Items...)
	return &clone, nil
}

// fakeIdempotency is an in-memory IdempotencyStore.
type fakeIdempotency struct {
	mu      sync.Mutex
	results map[string]*domain.ChangeResult
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{results: make(map[string]*domain.ChangeResult)}
}

func (f *fakeIdempotency) Get(ctx context.Context, entityID, key string) (*domain.ChangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[entityID+"|"+key]
	if !ok {
		return nil, nil
	}
	clone := *result
	return &clone, nil
}

func (f *fakeIdempotency) Put(ctx context.Context, entityID, key string, result *domain.ChangeResult, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *result
	f.results[entityID+"|"+key] = &clone
	return nil
}
