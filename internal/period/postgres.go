package period

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

// PostgresRepository stores accounting periods in PostgreSQL. A partial
// unique index enforces one OPEN period per (tenant, type) and an exclusion
// constraint backs the no-overlap rule (see migrations).
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an OPEN period, rejecting overlap and second-OPEN
// violations atomically.
func (r *PostgresRepository) Create(ctx context.Context, p Period) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var overlaps bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounting_periods
        WHERE tenant = $1 AND type = $2 AND start_date <= $3 AND end_date >= $4)`,
		p.Tenant, p.Type, p.End.UTC(), p.Start.UTC()).Scan(&overlaps)
	if err != nil {
		return err
	}
	if overlaps {
		return fmt.Errorf("%w: %s %s", ErrPeriodOverlap, p.Type, p.Tenant)
	}

	var openExists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounting_periods
        WHERE tenant = $1 AND type = $2 AND status = $3)`,
		p.Tenant, p.Type, StatusOpen).Scan(&openExists)
	if err != nil {
		return err
	}
	if openExists {
		return fmt.Errorf("%w: %s %s", ErrOpenPeriodExists, p.Type, p.Tenant)
	}

	_, err = tx.Exec(ctx, `INSERT INTO accounting_periods
        (id, tenant, type, start_date, end_date, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Tenant, p.Type, p.Start.UTC(), p.End.UTC(), p.Status, p.CreatedAt.UTC())
	if err != nil {
		return mapConstraintError(err, p)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapConstraintError(err, p)
	}
	return nil
}

// Get fetches a period by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT id, tenant, type, start_date, end_date, status,
        closed_by, closed_at, notes, created_at
        FROM accounting_periods WHERE id = $1`, id)
	p, err := scanPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, fmt.Errorf("%w: %s", ErrPeriodNotFound, id)
	}
	return p, err
}

// Update persists lifecycle changes.
func (r *PostgresRepository) Update(ctx context.Context, p Period) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounting_periods
        SET status = $1, closed_by = $2, closed_at = $3, notes = $4 WHERE id = $5`,
		p.Status, p.ClosedBy, nullTime(p.ClosedAt), p.Notes, p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPeriodNotFound, p.ID)
	}
	return nil
}

// Covering returns all periods for the tenant including the date.
func (r *PostgresRepository) Covering(ctx context.Context, tenant string, date time.Time) ([]Period, error) {
	return r.covering(ctx, r.db, tenant, date)
}

// CheckPosting implements ledger.PostingGate, running on the caller's
// transaction so a period cannot close between check and write. The most
// restrictive covering period wins.
func (r *PostgresRepository) CheckPosting(ctx context.Context, q infra.Querier, tenant string, date time.Time) error {
	if q == nil {
		q = r.db
	}
	periods, err := r.covering(ctx, q, tenant, date)
	if err != nil {
		return err
	}
	return gateDecision(periods, tenant, date)
}

func (r *PostgresRepository) covering(ctx context.Context, q infra.Querier, tenant string, date time.Time) ([]Period, error) {
	rows, err := q.Query(ctx, `SELECT id, tenant, type, start_date, end_date, status,
        closed_by, closed_at, notes, created_at
        FROM accounting_periods
        WHERE tenant = $1 AND start_date <= $2 AND end_date >= $2
        ORDER BY start_date`, tenant, date.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// gateDecision maps the covering periods to a posting-gate error. Shared by
// the Postgres and in-memory gates.
func gateDecision(periods []Period, tenant string, date time.Time) error {
	if len(periods) == 0 {
		return fmt.Errorf("%w: tenant %s, date %s", ledger.ErrPeriodNotOpen, tenant, date.Format(time.RFC3339))
	}

	softClosed := false
	for _, p := range periods {
		switch p.Status {
		case StatusHardClosed:
			return fmt.Errorf("%w: period %s", ledger.ErrPeriodClosed, p.ID)
		case StatusSoftClosed:
			softClosed = true
		}
	}
	if softClosed {
		return fmt.Errorf("%w: date %s", ledger.ErrOverrideRequired, date.Format(time.RFC3339))
	}
	return nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var closedBy, notes *string
	var closedAt *time.Time
	err := row.Scan(&p.ID, &p.Tenant, &p.Type, &p.Start, &p.End, &p.Status,
		&closedBy, &closedAt, &notes, &p.CreatedAt)
	if err != nil {
		return Period{}, err
	}
	if closedBy != nil {
		p.ClosedBy = *closedBy
	}
	if closedAt != nil {
		p.ClosedAt = *closedAt
	}
	if notes != nil {
		p.Notes = *notes
	}
	return p, nil
}

func mapConstraintError(err error, p Period) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return fmt.Errorf("%w: %s %s", ErrPeriodOverlap, p.Type, p.Tenant)
		case "23505":
			return fmt.Errorf("%w: %s %s", ErrOpenPeriodExists, p.Type, p.Tenant)
		}
	}
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
