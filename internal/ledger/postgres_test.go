package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapUniqueViolation(t *testing.T) {
	txn := Transaction{Reference: "txn-abc", IdempotencyKey: "stl:S1:reserve:0"}

	// A lost insert race on the idempotency key surfaces as the typed
	// conflict, whether Postgres raised it at INSERT or at COMMIT.
	err := mapUniqueViolation(&pgconn.PgError{
		Code: "23505", ConstraintName: "transactions_idempotency_key_key",
	}, txn)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), txn.IdempotencyKey) {
		t.Fatalf("conflict should name the key, got %q", err)
	}

	// A duplicate reference maps to the same sentinel but names the
	// reference.
	err = mapUniqueViolation(&pgconn.PgError{
		Code: "23505", ConstraintName: "transactions_reference_key",
	}, txn)
	if !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), txn.Reference) {
		t.Fatalf("conflict should name the reference, got %q", err)
	}

	// Anything else passes through untouched.
	fk := &pgconn.PgError{Code: "23503", ConstraintName: "entries_transaction_id_fkey"}
	if got := mapUniqueViolation(fk, txn); !errors.Is(got, fk) {
		t.Fatalf("foreign-key error rewritten: %v", got)
	}
	plain := errors.New("connection reset")
	if got := mapUniqueViolation(plain, txn); !errors.Is(got, plain) {
		t.Fatalf("plain error rewritten: %v", got)
	}
}
