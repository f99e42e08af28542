package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veloxpay/velox_ledger/internal/infra"
	"github.com/veloxpay/velox_ledger/internal/ledger"
)

// PostgresRepository stores ledger locks in PostgreSQL. An exclusion
// constraint backs the no-overlapping-active-locks rule (see migrations);
// the insert-time check here gives callers a typed error.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an active lock, rejecting same-type overlap atomically.
func (r *PostgresRepository) Create(ctx context.Context, l Lock) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var overlaps bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_locks
        WHERE tenant = $1 AND type = $2 AND status = $3 AND start_date <= $4 AND end_date >= $5)`,
		l.Tenant, l.Type, StatusActive, l.End.UTC(), l.Start.UTC()).Scan(&overlaps)
	if err != nil {
		return err
	}
	if overlaps {
		return fmt.Errorf("%w: %s %s", ErrLockOverlap, l.Type, l.Tenant)
	}

	_, err = tx.Exec(ctx, `INSERT INTO ledger_locks
        (id, type, tenant, start_date, end_date, status, reason, locked_by, locked_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.Type, l.Tenant, l.Start.UTC(), l.End.UTC(), l.Status, l.Reason, l.LockedBy, l.LockedAt.UTC())
	if err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("%w: %s %s", ErrLockOverlap, l.Type, l.Tenant)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("%w: %s %s", ErrLockOverlap, l.Type, l.Tenant)
		}
		return err
	}
	return nil
}

// Get fetches a lock by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Lock, error) {
	row := r.db.QueryRow(ctx, `SELECT id, type, tenant, start_date, end_date, status, reason,
        locked_by, locked_at, released_by, released_at, notes
        FROM ledger_locks WHERE id = $1`, id)
	l, err := scanLock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lock{}, fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	return l, err
}

// Update persists release metadata.
func (r *PostgresRepository) Update(ctx context.Context, l Lock) error {
	tag, err := r.db.Exec(ctx, `UPDATE ledger_locks
        SET status = $1, released_by = $2, released_at = $3, notes = $4 WHERE id = $5`,
		l.Status, l.ReleasedBy, nullTime(l.ReleasedAt), l.Notes, l.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrLockNotFound, l.ID)
	}
	return nil
}

// ActiveCovering returns active locks for the tenant covering the date.
func (r *PostgresRepository) ActiveCovering(ctx context.Context, tenant string, date time.Time) ([]Lock, error) {
	return r.activeCovering(ctx, r.db, tenant, date)
}

// CheckPosting implements ledger.PostingGate: it blocks postings dated
// inside any active lock window, running on the caller's transaction.
func (r *PostgresRepository) CheckPosting(ctx context.Context, q infra.Querier, tenant string, date time.Time) error {
	if q == nil {
		q = r.db
	}
	locks, err := r.activeCovering(ctx, q, tenant, date)
	if err != nil {
		return err
	}
	if len(locks) > 0 {
		return fmt.Errorf("%w: %s (%s)", ledger.ErrLockActive, locks[0].Type, locks[0].Reason)
	}
	return nil
}

func (r *PostgresRepository) activeCovering(ctx context.Context, q infra.Querier, tenant string, date time.Time) ([]Lock, error) {
	rows, err := q.Query(ctx, `SELECT id, type, tenant, start_date, end_date, status, reason,
        locked_by, locked_at, released_by, released_at, notes
        FROM ledger_locks
        WHERE tenant = $1 AND status = $2 AND start_date <= $3 AND end_date >= $3
        ORDER BY locked_at`, tenant, StatusActive, date.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []Lock
	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

func scanLock(row pgx.Row) (Lock, error) {
	var l Lock
	var releasedBy, notes *string
	var releasedAt *time.Time
	err := row.Scan(&l.ID, &l.Type, &l.Tenant, &l.Start, &l.End, &l.Status, &l.Reason,
		&l.LockedBy, &l.LockedAt, &releasedBy, &releasedAt, &notes)
	if err != nil {
		return Lock{}, err
	}
	if releasedBy != nil {
		l.ReleasedBy = *releasedBy
	}
	if releasedAt != nil {
		l.ReleasedAt = *releasedAt
	}
	if notes != nil {
		l.Notes = *notes
	}
	return l, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
