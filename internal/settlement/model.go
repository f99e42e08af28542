package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// State is one node of the settlement lifecycle.
type State string

const (
	StateCreated       State = "CREATED"
	StateFundsReserved State = "FUNDS_RESERVED"
	StateSentToBank    State = "SENT_TO_BANK"
	StateBankConfirmed State = "BANK_CONFIRMED"
	StateSettled       State = "SETTLED"
	StateFailed        State = "FAILED"
	StateRetried       State = "RETRIED"
)

// transitions is the legal edge set. SETTLED is terminal; FAILED is
// terminal once retries are exhausted.
var transitions = map[State][]State{
	StateCreated:       {StateFundsReserved, StateFailed},
	StateFundsReserved: {StateSentToBank, StateFailed},
	StateSentToBank:    {StateBankConfirmed, StateFailed},
	StateBankConfirmed: {StateSettled, StateFailed},
	StateFailed:        {StateRetried},
	StateRetried:       {StateFundsReserved, StateFailed},
	StateSettled:       nil,
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	Note string
	At   time.Time
}

// Settlement tracks a merchant payout to bank-confirmed finality.
type Settlement struct {
	ID              string
	Tenant          string
	MerchantAccount string
	Amount          decimal.Decimal
	Currency        string
	State           State

	// BankReference is the UTR confirming the transfer. Set at
	// BANK_CONFIRMED, the finality boundary: from there the settlement is
	// irrevocable for audit purposes.
	BankReference string

	RetryCount    int
	NextRetryAt   time.Time
	FailureReason string
	History       []Transition
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the settlement can never advance again.
func (s Settlement) Terminal(maxRetries int) bool {
	if s.State == StateSettled {
		return true
	}
	return s.State == StateFailed && s.RetryCount >= maxRetries
}

var (
	// ErrInvalidStateTransition occurs on any edge outside the legal set.
	ErrInvalidStateTransition = errors.New("invalid settlement state transition")

	// ErrMaxRetriesExceeded occurs when retrying a settlement whose retry
	// budget is spent; the settlement is terminally FAILED.
	ErrMaxRetriesExceeded = errors.New("settlement retries exhausted")

	// ErrMissingBankReference occurs when confirming without a UTR.
	ErrMissingBankReference = errors.New("bank reference is required")

	// ErrSettlementNotFound occurs on operations against unknown
	// settlements.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrInvalidAmount occurs when creating a settlement with a
	// non-positive amount.
	ErrInvalidAmount = errors.New("settlement amount must be positive")
)
