package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// BulkRepository stores bulk operations and their per-item outcomes. Item
// rows are inserted as items finish, so a crash mid-batch still leaves the
// completed outcomes visible.
type BulkRepository interface {
	CreateOperation(ctx context.Context, op *domain.BulkOperation) error
	AddItem(ctx context.Context, bulkID string, item domain.BulkItemResult) error
	Finalize(ctx context.Context, bulkID string, completedAt time.Time) error
	GetByID(ctx context.Context, id string) (*domain.BulkOperation, error)
}

type bulkRepository struct {
	pool *pgxpool.Pool
}

// NewBulkRepository builds repository.
func NewBulkRepository(pool *pgxpool.Pool) BulkRepository {
	return &bulkRepository{pool: pool}
}

func (r *bulkRepository) CreateOperation(ctx context.Context, op *domain.BulkOperation) error {
	const query = `
        INSERT INTO bulk_operations (id, submitted_by)
        VALUES ($1,$2)
        RETURNING started_at`
	return r.pool.QueryRow(ctx, query, op.ID, op.SubmittedBy).Scan(&op.StartedAt)
}

func (r *bulkRepository) AddItem(ctx context.Context, bulkID string, item domain.BulkItemResult) error {
	const query = `
        INSERT INTO bulk_operation_items (bulk_id, item_index, entity_id, outcome, detail, new_version, conflict_ids)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	conflictIDs := item.ConflictIDs
	if conflictIDs == nil {
		conflictIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		bulkID,
		item.ItemIndex,
		item.EntityID,
		item.Outcome,
		item.Detail,
		item.NewVersion,
		conflictIDs,
	)
	return err
}

func (r *bulkRepository) Finalize(ctx context.Context, bulkID string, completedAt time.Time) error {
	const query = `UPDATE bulk_operations SET completed_at=$1 WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, completedAt, bulkID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *bulkRepository) GetByID(ctx context.Context, id string) (*domain.BulkOperation, error) {
	const opQuery = `
        SELECT id, submitted_by, started_at, completed_at
        FROM bulk_operations WHERE id=$1`
	var op domain.BulkOperation
	if err := r.pool.QueryRow(ctx, opQuery, id).Scan(
		&op.ID,
		&op.SubmittedBy,
		&op.StartedAt,
		&op.CompletedAt,
	); err != nil {
		return nil, err
	}

	const itemQuery = `
        SELECT item_index, entity_id, outcome, detail, new_version, conflict_ids
        FROM bulk_operation_items WHERE bulk_id=$1 ORDER BY item_index ASC`
	rows, err := r.pool.Query(ctx, itemQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.BulkItemResult
		if err := rows.Scan(
			&item.ItemIndex,
			&item.EntityID,
			&item.Outcome,
			&item.Detail,
			&item.NewVersion,
			&item.ConflictIDs,
		); err != nil {
			return nil, err
		}
		op.Items = append(op.Items, item)
	}
	return &op, rows.Err()
}
