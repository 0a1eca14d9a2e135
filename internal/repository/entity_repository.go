package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// ApplyChange bundles everything committed in one version transition: the
// conditional field update, its audit entries, and a snapshot when the new
// version lands on the snapshot interval.
type ApplyChange struct {
	EntityID         string
	BaseVersion      int64
	FieldChanges     map[string]any
	Diffs            []domain.FieldDiff
	Actor            string
	Origin           domain.ChangeOrigin
	SnapshotInterval int64
}

// EntityRepository encapsulates entity persistence. ApplyIfCurrent is the
// engine's only write path for entity fields: a compare-and-swap on the
// version column, atomic with the audit entries it produces.
type EntityRepository interface {
	Create(ctx context.Context, entity *domain.Entity) error
	GetByID(ctx context.Context, id string) (*domain.Entity, error)
	ApplyIfCurrent(ctx context.Context, change ApplyChange) (int64, bool, error)
}

type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository instantiates repository.
func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

func (r *entityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	const query = `
        INSERT INTO entities (fields, version)
        VALUES ('{}'::jsonb, 0)
        RETURNING id, created_at, updated_at`
	entity.Fields = map[string]any{}
	entity.Version = 0
	return r.pool.QueryRow(ctx, query).Scan(&entity.ID, &entity.CreatedAt, &entity.UpdatedAt)
}

func (r *entityRepository) GetByID(ctx context.Context, id string) (*domain.Entity, error) {
	const query = `
        SELECT id, fields, version, created_at, updated_at
        FROM entities WHERE id=$1`
	var entity domain.Entity
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&entity.ID,
		&entity.Fields,
		&entity.Version,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entity, nil
}

// ApplyIfCurrent performs the conditional write. It succeeds only when the
// stored version still equals change.BaseVersion; a stale base returns
// ok=false with no side effects. The field merge, every audit entry, and
// the interval snapshot commit or roll back together.
func (r *entityRepository) ApplyIfCurrent(ctx context.Context, change ApplyChange) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const update = `
        UPDATE entities SET fields = fields || $1::jsonb, version = version + 1, updated_at = NOW()
        WHERE id=$2 AND version=$3
        RETURNING version, fields`
	var newVersion int64
	var fields map[string]any
	err = tx.QueryRow(ctx, update, change.FieldChanges, change.EntityID, change.BaseVersion).
		Scan(&newVersion, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	if err := insertAuditEntries(ctx, tx, change, newVersion); err != nil {
		return 0, false, err
	}

	if change.SnapshotInterval > 0 && newVersion%change.SnapshotInterval == 0 {
		if err := insertSnapshot(ctx, tx, change.EntityID, newVersion, fields); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return newVersion, true, nil
}
