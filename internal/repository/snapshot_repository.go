package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// SnapshotRepository stores periodic full-state captures. Snapshots are
// derived data: losing one only costs a longer replay.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *domain.VersionSnapshot) error
	LatestAtOrBelow(ctx context.Context, entityID string, version int64) (*domain.VersionSnapshot, error)
}

type snapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository builds repository.
func NewSnapshotRepository(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepository{pool: pool}
}

func (r *snapshotRepository) Create(ctx context.Context, snapshot *domain.VersionSnapshot) error {
	const query = `
        INSERT INTO version_snapshots (entity_id, version, fields)
        VALUES ($1,$2,$3)
        ON CONFLICT (entity_id, version) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, snapshot.EntityID, snapshot.Version, snapshot.Fields)
	return err
}

// LatestAtOrBelow returns the newest snapshot not past version, or nil when
// none exists yet.
func (r *snapshotRepository) LatestAtOrBelow(ctx context.Context, entityID string, version int64) (*domain.VersionSnapshot, error) {
	const query = `
        SELECT entity_id, version, fields, created_at
        FROM version_snapshots
        WHERE entity_id=$1 AND version <= $2
        ORDER BY version DESC LIMIT 1`
	var snapshot domain.VersionSnapshot
	err := r.pool.QueryRow(ctx, query, entityID, version).Scan(
		&snapshot.EntityID,
		&snapshot.Version,
		&snapshot.Fields,
		&snapshot.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// insertSnapshot writes the interval snapshot inside the apply transaction.
func insertSnapshot(ctx context.Context, tx pgx.Tx, entityID string, version int64, fields map[string]any) error {
	const query = `
        INSERT INTO version_snapshots (entity_id, version, fields)
        VALUES ($1,$2,$3)
        ON CONFLICT (entity_id, version) DO NOTHING`
	_, err := tx.Exec(ctx, query, entityID, version, fields)
	return err
}
