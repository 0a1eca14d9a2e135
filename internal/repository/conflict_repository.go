package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// ConflictRepository stores field-level conflicts. Rows are created by the
// detector, mutated only through Resolve, never deleted.
type ConflictRepository interface {
	CreateMany(ctx context.Context, conflicts []domain.Conflict) error
	GetByID(ctx context.Context, id string) (*domain.Conflict, error)
	ListByEntity(ctx context.Context, entityID string, onlyOpen bool) ([]domain.Conflict, error)
	ListOpenByFields(ctx context.Context, entityID string, fields []string) ([]domain.Conflict, error)
	Resolve(ctx context.Context, id string, status domain.ConflictStatus, strategy *domain.ResolutionStrategy, resolvedBy string, resolvedAt time.Time) (bool, error)
	Reopen(ctx context.Context, id string) error
}

type conflictRepository struct {
	pool *pgxpool.Pool
}

// NewConflictRepository builds repository.
func NewConflictRepository(pool *pgxpool.Pool) ConflictRepository {
	return &conflictRepository{pool: pool}
}

const conflictColumns = `id, entity_id, field_name, base_version, base_value, theirs_value, ours_value, proposed_by, status, strategy, resolved_by, resolved_at, created_at`

func (r *conflictRepository) CreateMany(ctx context.Context, conflicts []domain.Conflict) error {
	const query = `
        INSERT INTO conflicts (id, entity_id, field_name, base_version, base_value, theirs_value, ours_value, proposed_by, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for i := range conflicts {
		c := &conflicts[i]
		baseValue, err := encodeJSON(c.BaseValue)
		if err != nil {
			return err
		}
		theirsValue, err := encodeJSON(c.TheirsValue)
		if err != nil {
			return err
		}
		oursValue, err := encodeJSON(c.OursValue)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, query,
			c.ID,
			c.EntityID,
			c.FieldName,
			c.BaseVersion,
			baseValue,
			theirsValue,
			oursValue,
			c.ProposedBy,
			c.Status,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *conflictRepository) GetByID(ctx context.Context, id string) (*domain.Conflict, error) {
	const query = `SELECT ` + conflictColumns + ` FROM conflicts WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanConflict(row)
}

func (r *conflictRepository) ListByEntity(ctx context.Context, entityID string, onlyOpen bool) ([]domain.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE entity_id=$1`
	if onlyOpen {
		query += ` AND status='unresolved'`
	}
	query += ` ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, err
	}
	return scanConflictRows(rows)
}

func (r *conflictRepository) ListOpenByFields(ctx context.Context, entityID string, fields []string) ([]domain.Conflict, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	const query = `
        SELECT ` + conflictColumns + `
        FROM conflicts
        WHERE entity_id=$1 AND status='unresolved' AND field_name = ANY($2)
        ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, entityID, fields)
	if err != nil {
		return nil, err
	}
	return scanConflictRows(rows)
}

// Resolve flips an unresolved conflict to its terminal status. Returns
// false when the conflict was already resolved, which makes resolution
// idempotent at the store level.
func (r *conflictRepository) Resolve(ctx context.Context, id string, status domain.ConflictStatus, strategy *domain.ResolutionStrategy, resolvedBy string, resolvedAt time.Time) (bool, error) {
	const query = `
        UPDATE conflicts SET status=$1, strategy=$2, resolved_by=$3, resolved_at=$4
        WHERE id=$5 AND status='unresolved'`
	cmd, err := r.pool.Exec(ctx, query, status, strategy, resolvedBy, resolvedAt, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// Reopen puts a conflict back to unresolved. Compensation path for a
// resolution whose follow-up write failed; the conflict must not stay
// marked resolved when the resolver's value never landed.
func (r *conflictRepository) Reopen(ctx context.Context, id string) error {
	const query = `
        UPDATE conflicts SET status='unresolved', strategy=NULL, resolved_by=NULL, resolved_at=NULL
        WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func scanConflict(row pgx.Row) (*domain.Conflict, error) {
	var c domain.Conflict
	if err := row.Scan(
		&c.ID,
		&c.EntityID,
		&c.FieldName,
		&c.BaseVersion,
		&c.BaseValue,
		&c.TheirsValue,
		&c.OursValue,
		&c.ProposedBy,
		&c.Status,
		&c.Strategy,
		&c.ResolvedBy,
		&c.ResolvedAt,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanConflictRows(rows pgx.Rows) ([]domain.Conflict, error) {
	defer rows.Close()
	var result []domain.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}
