package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// AuditRepository reads the append-only audit trail. Writes happen only
// inside the ApplyIfCurrent transaction (see insertAuditEntries).
type AuditRepository interface {
	ListRange(ctx context.Context, entityID string, fromVersion, toVersion int64) ([]domain.AuditEntry, error)
	ListSince(ctx context.Context, entityID string, sinceVersion int64) ([]domain.AuditEntry, error)
	ListRecent(ctx context.Context, entityID string, since time.Time) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

const auditColumns = `id, entity_id, version_before, version_after, field_name, old_value, new_value, actor, origin, created_at`

// ListRange returns entries with fromVersion < version_after <= toVersion,
// ordered by version.
func (r *auditRepository) ListRange(ctx context.Context, entityID string, fromVersion, toVersion int64) ([]domain.AuditEntry, error) {
	const query = `
        SELECT ` + auditColumns + `
        FROM audit_entries
        WHERE entity_id=$1 AND version_after > $2 AND version_after <= $3
        ORDER BY version_after ASC, field_name ASC`
	rows, err := r.pool.Query(ctx, query, entityID, fromVersion, toVersion)
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func (r *auditRepository) ListSince(ctx context.Context, entityID string, sinceVersion int64) ([]domain.AuditEntry, error) {
	const query = `
        SELECT ` + auditColumns + `
        FROM audit_entries
        WHERE entity_id=$1 AND version_after > $2
        ORDER BY version_after ASC, field_name ASC`
	rows, err := r.pool.Query(ctx, query, entityID, sinceVersion)
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func (r *auditRepository) ListRecent(ctx context.Context, entityID string, since time.Time) ([]domain.AuditEntry, error) {
	const query = `
        SELECT ` + auditColumns + `
        FROM audit_entries
        WHERE entity_id=$1 AND created_at >= $2
        ORDER BY version_after ASC, field_name ASC`
	rows, err := r.pool.Query(ctx, query, entityID, since)
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func scanAuditRows(rows pgx.Rows) ([]domain.AuditEntry, error) {
	defer rows.Close()
	var result []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityID,
			&entry.VersionBefore,
			&entry.VersionAfter,
			&entry.FieldName,
			&entry.OldValue,
			&entry.NewValue,
			&entry.Actor,
			&entry.Origin,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// insertAuditEntries writes one row per changed field, all sharing the same
// version transition, inside the caller's transaction.
func insertAuditEntries(ctx context.Context, tx pgx.Tx, change ApplyChange, newVersion int64) error {
	const query = `
        INSERT INTO audit_entries (entity_id, version_before, version_after, field_name, old_value, new_value, actor, origin)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	for _, diff := range change.Diffs {
		oldValue, err := encodeJSON(diff.OldValue)
		if err != nil {
			return err
		}
		newValue, err := encodeJSON(diff.NewValue)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query,
			change.EntityID,
			newVersion-1,
			newVersion,
			diff.FieldName,
			oldValue,
			newValue,
			change.Actor,
			change.Origin,
		); err != nil {
			return err
		}
	}
	return nil
}
