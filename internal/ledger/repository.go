package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/infra"
)

// PostingGate is a cooperative write-time check (accounting period status,
// ledger locks) evaluated inside the same storage transaction as the write
// it guards, so the gate cannot change between check and insert.
//
// A nil return allows the posting. ErrOverrideRequired allows it only when
// the caller holds a granted override; any other error blocks it. Postgres
// implementations run their queries on q; in-memory implementations ignore
// it.
type PostingGate interface {
	CheckPosting(ctx context.Context, q infra.Querier, tenant string, date time.Time) error
}

// PostRequest carries a fully validated transaction into the repository.
type PostRequest struct {
	Transaction Transaction

	// AllowSoftClosed is set when a recorded override permits posting into
	// a soft-closed period.
	AllowSoftClosed bool
}

// ReverseRequest identifies a posted transaction to reverse.
type ReverseRequest struct {
	TransactionID   string
	Reason          string
	Actor           string
	EffectiveDate   time.Time
	AllowSoftClosed bool
}

// Repository persists the ledger. The Post and Reverse implementations are
// atomic: idempotency lookup, gate checks and inserts all happen inside one
// storage transaction, and no partial posting is ever observable.
type Repository interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, code string) (Account, error)

	// Post writes the transaction and its entries. The returned bool is
	// true when the idempotency key had been used before with an identical
	// payload and the prior transaction is returned unchanged.
	Post(ctx context.Context, req PostRequest) (Transaction, bool, error)

	// Reverse creates the mirrored transaction and links both ways.
	Reverse(ctx context.Context, req ReverseRequest) (Transaction, error)

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (Transaction, error)

	// Balance folds over posted entries for the account, signed by whether
	// the entry direction matches the account's normal balance.
	Balance(ctx context.Context, accountCode string) (decimal.Decimal, error)

	// TrialBalance returns the derived position of every account with
	// postings for the tenant.
	TrialBalance(ctx context.Context, tenant string) ([]AccountBalance, error)

	// ListPostedReferences returns references of posted transactions for
	// the tenant whose effective date falls in [from, to]. Used by
	// reconciliation to detect internal postings missing externally.
	ListPostedReferences(ctx context.Context, tenant string, from, to time.Time) ([]string, error)
}

// buildReversal mirrors the original's entries with directions flipped and
// links the new transaction back to it. Shared by repository backends.
func buildReversal(original Transaction, req ReverseRequest) Transaction {
	reversal := Transaction{
		ID:             uuid.NewString(),
		Reference:      "txn-" + uuid.NewString(),
		Tenant:         original.Tenant,
		EventType:      "reversal",
		Status:         StatusPosted,
		EffectiveDate:  req.EffectiveDate.UTC(),
		ReversesID:     original.ID,
		ReversalReason: req.Reason,
		CreatedAt:      time.Now().UTC(),
	}
	for _, e := range original.Entries {
		reversal.Entries = append(reversal.Entries, Entry{
			ID:            uuid.NewString(),
			TransactionID: reversal.ID,
			AccountCode:   e.AccountCode,
			Direction:     e.Direction.Opposite(),
			Amount:        e.Amount,
			Currency:      e.Currency,
		})
	}
	return reversal
}
