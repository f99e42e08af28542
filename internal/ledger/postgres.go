package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/infra"
)

// PostgresRepository persists the ledger in PostgreSQL. Entry immutability
// is additionally enforced at the storage layer by a trigger rejecting
// UPDATE and DELETE on the entries table (see migrations).
type PostgresRepository struct {
	db    *pgxpool.Pool
	gates []PostingGate
}

// NewPostgresRepository constructs a Postgres-backed ledger repository. The
// gates run inside the same transaction as every posting.
func NewPostgresRepository(db *pgxpool.Pool, gates ...PostingGate) *PostgresRepository {
	return &PostgresRepository{db: db, gates: gates}
}

// CreateAccount registers a chart-of-accounts entry. Existing codes are
// left untouched.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (code, type, normal_balance, category, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (code) DO NOTHING`,
		account.Code, account.Type, account.NormalBalance, account.Category, account.Status, account.CreatedAt.UTC())
	return err
}

// GetAccount fetches account metadata by code.
func (r *PostgresRepository) GetAccount(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT code, type, normal_balance, category, status, created_at
        FROM accounts WHERE code = $1`, code).
		Scan(&a.Code, &a.Type, &a.NormalBalance, &a.Category, &a.Status, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// Post atomically writes the transaction and its entries. The idempotency
// lookup, gate checks, account validation and inserts all happen inside one
// transaction so no writer can close a period or reuse the key in between.
func (r *PostgresRepository) Post(ctx context.Context, req PostRequest) (Transaction, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txn := req.Transaction

	if txn.IdempotencyKey != "" {
		var priorID, priorHash string
		err := tx.QueryRow(ctx, `SELECT id, payload_hash FROM transactions WHERE idempotency_key = $1`,
			txn.IdempotencyKey).Scan(&priorID, &priorHash)
		switch {
		case err == nil:
			if priorHash != txn.PayloadHash {
				return Transaction{}, false, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, txn.IdempotencyKey)
			}
			prior, err := getTransaction(ctx, tx, priorID)
			if err != nil {
				return Transaction{}, false, err
			}
			return prior, true, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return Transaction{}, false, err
		}
	}

	if err := r.checkGates(ctx, tx, txn.Tenant, txn.EffectiveDate, req.AllowSoftClosed); err != nil {
		return Transaction{}, false, err
	}
	if err := checkAccounts(ctx, tx, txn.Entries); err != nil {
		return Transaction{}, false, err
	}

	// A concurrent writer may claim the key or reference between our lookup
	// and the insert; Postgres raises the unique violation at the INSERT, or
	// at COMMIT for a deferred constraint, so both paths map to the typed
	// conflict.
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return Transaction{}, false, mapUniqueViolation(err, txn)
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, false, mapUniqueViolation(err, txn)
	}

	return txn, false, nil
}

// Reverse atomically posts the mirrored transaction and links both ways.
func (r *PostgresRepository) Reverse(ctx context.Context, req ReverseRequest) (Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var status TransactionStatus
	err = tx.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, req.TransactionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, req.TransactionID)
	}
	if err != nil {
		return Transaction{}, err
	}
	if status != StatusPosted {
		return Transaction{}, fmt.Errorf("%w: status %s", ErrAlreadyReversed, status)
	}

	original, err := getTransaction(ctx, tx, req.TransactionID)
	if err != nil {
		return Transaction{}, err
	}

	if err := r.checkGates(ctx, tx, original.Tenant, req.EffectiveDate, req.AllowSoftClosed); err != nil {
		return Transaction{}, err
	}

	reversal := buildReversal(original, req)
	if err := insertTransaction(ctx, tx, reversal); err != nil {
		return Transaction{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE transactions SET status = $1, reversed_by_id = $2 WHERE id = $3`,
		StatusReversed, reversal.ID, original.ID); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}

	return reversal, nil
}

// GetTransaction fetches a transaction with its entries by id.
func (r *PostgresRepository) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return getTransaction(ctx, r.db, id)
}

// GetTransactionByReference fetches a transaction with its entries by its
// unique reference.
func (r *PostgresRepository) GetTransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT id FROM transactions WHERE reference = $1`, reference).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
	}
	if err != nil {
		return Transaction{}, err
	}
	return getTransaction(ctx, r.db, id)
}

// Balance derives the signed position for the account by folding over its
// posted entries. Never stored as mutable state.
func (r *PostgresRepository) Balance(ctx context.Context, accountCode string) (decimal.Decimal, error) {
	var normal Direction
	err := r.db.QueryRow(ctx, `SELECT normal_balance FROM accounts WHERE code = $1`, accountCode).Scan(&normal)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAccountNotFound, accountCode)
	}
	if err != nil {
		return decimal.Zero, err
	}

	const query = `
        SELECT COALESCE(SUM(CASE WHEN e.direction = $2 THEN e.amount ELSE -e.amount END), 0)::text
        FROM entries e
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE e.account_code = $1 AND t.status IN ('posted', 'reversed')`
	var raw string
	if err := r.db.QueryRow(ctx, query, accountCode, normal).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// TrialBalance returns the derived position of every account with postings
// for the tenant.
func (r *PostgresRepository) TrialBalance(ctx context.Context, tenant string) ([]AccountBalance, error) {
	const query = `
        SELECT a.code, a.normal_balance,
               COALESCE(SUM(CASE WHEN e.direction = a.normal_balance THEN e.amount ELSE -e.amount END), 0)::text
        FROM accounts a
        INNER JOIN entries e ON e.account_code = a.code
        INNER JOIN transactions t ON t.id = e.transaction_id
        WHERE t.tenant = $1 AND t.status IN ('posted', 'reversed')
        GROUP BY a.code, a.normal_balance
        ORDER BY a.code`
	rows, err := r.db.Query(ctx, query, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		var raw string
		if err := rows.Scan(&b.AccountCode, &b.NormalBalance, &raw); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListPostedReferences returns references of transactions posted for the
// tenant with an effective date inside [from, to].
func (r *PostgresRepository) ListPostedReferences(ctx context.Context, tenant string, from, to time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT reference FROM transactions
        WHERE tenant = $1 AND status IN ('posted', 'reversed') AND effective_date BETWEEN $2 AND $3
        ORDER BY effective_date`, tenant, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *PostgresRepository) checkGates(ctx context.Context, q infra.Querier, tenant string, date time.Time, allowSoftClosed bool) error {
	for _, gate := range r.gates {
		err := gate.CheckPosting(ctx, q, tenant, date)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrOverrideRequired) && allowSoftClosed {
			continue
		}
		return err
	}
	return nil
}

func checkAccounts(ctx context.Context, q infra.Querier, entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.AccountCode] {
			continue
		}
		seen[e.AccountCode] = true

		var status AccountStatus
		err := q.QueryRow(ctx, `SELECT status FROM accounts WHERE code = $1`, e.AccountCode).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, e.AccountCode)
		}
		if err != nil {
			return err
		}
		if status != AccountActive {
			return fmt.Errorf("%w: %s is %s", ErrAccountInactive, e.AccountCode, status)
		}
	}
	return nil
}

func insertTransaction(ctx context.Context, q infra.Querier, txn Transaction) error {
	_, err := q.Exec(ctx, `INSERT INTO transactions
        (id, reference, tenant, idempotency_key, event_type, status, effective_date, reverses_id, reversed_by_id, reversal_reason, payload_hash, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		txn.ID, txn.Reference, txn.Tenant, nullable(txn.IdempotencyKey), txn.EventType, txn.Status,
		txn.EffectiveDate.UTC(), nullable(txn.ReversesID), nullable(txn.ReversedByID), txn.ReversalReason,
		txn.PayloadHash, txn.CreatedAt.UTC())
	if err != nil {
		return err
	}
	for _, e := range txn.Entries {
		if _, err := q.Exec(ctx, `INSERT INTO entries (id, transaction_id, account_code, direction, amount, currency)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.TransactionID, e.AccountCode, e.Direction, e.Amount.String(), e.Currency); err != nil {
			return err
		}
	}
	return nil
}

func getTransaction(ctx context.Context, q infra.Querier, id string) (Transaction, error) {
	var t Transaction
	var idemKey, reverses, reversedBy *string
	err := q.QueryRow(ctx, `SELECT id, reference, tenant, idempotency_key, event_type, status, effective_date,
        reverses_id, reversed_by_id, reversal_reason, payload_hash, created_at
        FROM transactions WHERE id = $1`, id).
		Scan(&t.ID, &t.Reference, &t.Tenant, &idemKey, &t.EventType, &t.Status, &t.EffectiveDate,
			&reverses, &reversedBy, &t.ReversalReason, &t.PayloadHash, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if err != nil {
		return Transaction{}, err
	}
	t.IdempotencyKey = deref(idemKey)
	t.ReversesID = deref(reverses)
	t.ReversedByID = deref(reversedBy)

	rows, err := q.Query(ctx, `SELECT id, transaction_id, account_code, direction, amount::text, currency
        FROM entries WHERE transaction_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transaction{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var raw string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountCode, &e.Direction, &raw, &e.Currency); err != nil {
			return Transaction{}, err
		}
		if e.Amount, err = decimal.NewFromString(raw); err != nil {
			return Transaction{}, err
		}
		t.Entries = append(t.Entries, e)
	}
	return t, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// mapUniqueViolation translates a 23505 from a lost insert race into the
// typed conflict, naming whichever identity collided. Other errors pass
// through unchanged.
func mapUniqueViolation(err error, txn Transaction) error {
	if !isUniqueViolation(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "reference") {
		return fmt.Errorf("%w: reference %s", ErrIdempotencyConflict, txn.Reference)
	}
	return fmt.Errorf("%w: key %s", ErrIdempotencyConflict, txn.IdempotencyKey)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
