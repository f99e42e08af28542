package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository persists reconciliation batches and items in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateBatch inserts an open batch.
func (r *PostgresRepository) CreateBatch(ctx context.Context, b Batch) (Batch, error) {
	_, err := r.db.Exec(ctx, `INSERT INTO recon_batches
        (id, tenant, type, period_label, source, window_start, window_end, status, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.Tenant, b.Type, b.PeriodLabel, b.Source, b.Start.UTC(), b.End.UTC(), b.Status, b.CreatedBy, b.CreatedAt.UTC())
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

// GetBatch fetches a batch by id.
func (r *PostgresRepository) GetBatch(ctx context.Context, id string) (Batch, error) {
	var b Batch
	var completed *time.Time
	err := r.db.QueryRow(ctx, `SELECT id, tenant, type, period_label, source, window_start, window_end,
        status, created_by, created_at, completed_at
        FROM recon_batches WHERE id = $1`, id).
		Scan(&b.ID, &b.Tenant, &b.Type, &b.PeriodLabel, &b.Source, &b.Start, &b.End,
			&b.Status, &b.CreatedBy, &b.CreatedAt, &completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return Batch{}, err
	}
	if completed != nil {
		b.CompletedAt = *completed
	}
	return b, nil
}

// CompleteBatch marks the batch completed and stores its items atomically.
func (r *PostgresRepository) CompleteBatch(ctx context.Context, b Batch, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE recon_batches SET status = $1, completed_at = $2
        WHERE id = $3 AND status = $4`, b.Status, b.CompletedAt.UTC(), b.ID, BatchOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchCompleted
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO recon_items
            (id, batch_id, external_ref, external_amount, internal_ref, internal_amount, currency,
             match_status, resolution_status, notes, resolved_by, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			it.ID, it.BatchID, it.ExternalRef, it.ExternalAmount.String(), it.InternalRef,
			it.InternalAmount.String(), it.Currency, it.MatchStatus, it.ResolutionStatus,
			it.Notes, it.ResolvedBy, it.CreatedAt.UTC(), it.UpdatedAt.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetItem fetches an item by id.
func (r *PostgresRepository) GetItem(ctx context.Context, id string) (Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, itemColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, err
}

// UpdateItem persists an item's resolution fields.
func (r *PostgresRepository) UpdateItem(ctx context.Context, it Item) error {
	tag, err := r.db.Exec(ctx, `UPDATE recon_items
        SET resolution_status = $1, notes = $2, resolved_by = $3, updated_at = $4
        WHERE id = $5`,
		it.ResolutionStatus, it.Notes, it.ResolvedBy, it.UpdatedAt.UTC(), it.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, it.ID)
	}
	return nil
}

// ListItems returns all items of a batch.
func (r *PostgresRepository) ListItems(ctx context.Context, batchID string) ([]Item, error) {
	rows, err := r.db.Query(ctx, itemColumns+` WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const itemColumns = `SELECT id, batch_id, external_ref, external_amount::text, internal_ref,
    internal_amount::text, currency, match_status, resolution_status, notes, resolved_by,
    created_at, updated_at
    FROM recon_items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var it Item
	var external, internal string
	err := row.Scan(&it.ID, &it.BatchID, &it.ExternalRef, &external, &it.InternalRef,
		&internal, &it.Currency, &it.MatchStatus, &it.ResolutionStatus, &it.Notes, &it.ResolvedBy,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return Item{}, err
	}
	if it.ExternalAmount, err = decimal.NewFromString(external); err != nil {
		return Item{}, err
	}
	if it.InternalAmount, err = decimal.NewFromString(internal); err != nil {
		return Item{}, err
	}
	return it, nil
}
