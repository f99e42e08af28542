package reconciliation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BatchType scopes what external source a batch reconciles against.
type BatchType string

const (
	BatchGatewaySettlement BatchType = "gateway_settlement"
	BatchBankStatement     BatchType = "bank_statement"
	BatchEscrowStatement   BatchType = "escrow_statement"
)

// BatchStatus is the lifecycle of a batch.
type BatchStatus string

const (
	BatchOpen      BatchStatus = "open"
	BatchCompleted BatchStatus = "completed"
)

// Batch groups the reconciliation of one external statement window.
type Batch struct {
	ID          string
	Tenant      string
	Type        BatchType
	PeriodLabel string
	Source      string
	Start       time.Time
	End         time.Time
	Status      BatchStatus
	CreatedBy   string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// MatchStatus classifies one statement line against the ledger.
type MatchStatus string

const (
	// Matched: external reference found internally with the same amount.
	Matched MatchStatus = "matched"
	// MissingInternal: the statement has it, the ledger does not.
	MissingInternal MatchStatus = "missing_internal"
	// MissingExternal: the ledger has it, the statement does not.
	MissingExternal MatchStatus = "missing_external"
	// AmountMismatch: reference found but amounts differ.
	AmountMismatch MatchStatus = "amount_mismatch"
	// Duplicate: the statement repeats a reference.
	Duplicate MatchStatus = "duplicate"
)

// ResolutionStatus tracks the manual follow-up on a discrepancy.
type ResolutionStatus string

const (
	Unresolved    ResolutionStatus = "unresolved"
	Investigating ResolutionStatus = "investigating"
	Resolved      ResolutionStatus = "resolved"
	WrittenOff    ResolutionStatus = "written_off"
)

// Item is one reconciled statement line or unmatched internal posting.
// Resolution never edits ledger entries, only this record.
type Item struct {
	ID               string
	BatchID          string
	ExternalRef      string
	ExternalAmount   decimal.Decimal
	InternalRef      string
	InternalAmount   decimal.Decimal
	Currency         string
	MatchStatus      MatchStatus
	ResolutionStatus ResolutionStatus
	Notes            string
	ResolvedBy       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExternalRecord is one line of a gateway or bank statement.
type ExternalRecord struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Date      time.Time
}

// Summary counts a batch's outcome by classification.
type Summary struct {
	Matched         int
	MissingInternal int
	MissingExternal int
	AmountMismatch  int
	Duplicate       int
}

var (
	// ErrBatchNotFound occurs on operations against unknown batches.
	ErrBatchNotFound = errors.New("reconciliation batch not found")

	// ErrItemNotFound occurs on operations against unknown items.
	ErrItemNotFound = errors.New("reconciliation item not found")

	// ErrBatchCompleted occurs when reconciling an already completed batch.
	ErrBatchCompleted = errors.New("reconciliation batch already completed")

	// ErrInvalidResolution occurs on unknown resolution statuses.
	ErrInvalidResolution = errors.New("invalid resolution status")
)
