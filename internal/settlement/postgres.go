package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresRepository stores settlements and their transition history in
// PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a settlement in its initial state.
func (r *PostgresRepository) Create(ctx context.Context, s Settlement) error {
	_, err := r.db.Exec(ctx, `INSERT INTO settlements
        (id, tenant, merchant_account, amount, currency, state, bank_reference, retry_count, next_retry_at, failure_reason, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.Tenant, s.MerchantAccount, s.Amount.String(), s.Currency, s.State,
		s.BankReference, s.RetryCount, nullTime(s.NextRetryAt), s.FailureReason,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	return err
}

// Get fetches a settlement with its transition history.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Settlement, error) {
	row := r.db.QueryRow(ctx, `SELECT id, tenant, merchant_account, amount::text, currency, state,
        bank_reference, retry_count, next_retry_at, failure_reason, created_at, updated_at
        FROM settlements WHERE id = $1`, id)
	s, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, fmt.Errorf("%w: %s", ErrSettlementNotFound, id)
	}
	if err != nil {
		return Settlement{}, err
	}

	rows, err := r.db.Query(ctx, `SELECT from_state, to_state, note, created_at
        FROM settlement_transitions WHERE settlement_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return Settlement{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.From, &tr.To, &tr.Note, &tr.At); err != nil {
			return Settlement{}, err
		}
		s.History = append(s.History, tr)
	}
	return s, rows.Err()
}

// Update persists the settlement and appends the transition atomically.
func (r *PostgresRepository) Update(ctx context.Context, s Settlement, tr Transition) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE settlements
        SET state = $1, bank_reference = $2, retry_count = $3, next_retry_at = $4,
            failure_reason = $5, updated_at = $6
        WHERE id = $7`,
		s.State, s.BankReference, s.RetryCount, nullTime(s.NextRetryAt),
		s.FailureReason, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSettlementNotFound, s.ID)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO settlement_transitions
        (id, settlement_id, from_state, to_state, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), s.ID, tr.From, tr.To, tr.Note, tr.At.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// DueForRetry returns settlements in RETRIED with an elapsed schedule.
func (r *PostgresRepository) DueForRetry(ctx context.Context, now time.Time, limit int) ([]Settlement, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant, merchant_account, amount::text, currency, state,
        bank_reference, retry_count, next_retry_at, failure_reason, created_at, updated_at
        FROM settlements
        WHERE state = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
        ORDER BY next_retry_at LIMIT $3`, StateRetried, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClearSchedule zeroes next_retry_at after dispatch.
func (r *PostgresRepository) ClearSchedule(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE settlements SET next_retry_at = NULL WHERE id = $1`, id)
	return err
}

func scanSettlement(row pgx.Row) (Settlement, error) {
	var s Settlement
	var rawAmount string
	var nextRetry *time.Time
	err := row.Scan(&s.ID, &s.Tenant, &s.MerchantAccount, &rawAmount, &s.Currency, &s.State,
		&s.BankReference, &s.RetryCount, &nextRetry, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Settlement{}, err
	}
	if s.Amount, err = decimal.NewFromString(rawAmount); err != nil {
		return Settlement{}, err
	}
	if nextRetry != nil {
		s.NextRetryAt = *nextRetry
	}
	return s, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
