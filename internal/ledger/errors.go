package ledger

import "errors"

var (
	// ErrValidation indicates malformed posting input.
	ErrValidation = errors.New("invalid posting input")

	// ErrUnbalancedTransaction occurs when debits and credits differ beyond
	// the configured tolerance.
	ErrUnbalancedTransaction = errors.New("unbalanced transaction")

	// ErrAccountNotFound occurs when an entry references an unknown account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInactive occurs when an entry references an inactive or
	// closed account.
	ErrAccountInactive = errors.New("account not active")

	// ErrPeriodNotOpen occurs when no accounting period covers the posting
	// date. Fatal: the caller must wait for a period to be created.
	ErrPeriodNotOpen = errors.New("no open accounting period for date")

	// ErrPeriodClosed occurs when the covering period is hard closed.
	// Fatal: no override can unblock it.
	ErrPeriodClosed = errors.New("accounting period closed")

	// ErrOverrideRequired occurs when the covering period is soft closed.
	// Recoverable: the caller may resubmit with a valid override.
	ErrOverrideRequired = errors.New("override required")

	// ErrLockActive occurs when an active ledger lock covers the posting
	// date. Fatal for writes; reads remain allowed.
	ErrLockActive = errors.New("ledger lock active")

	// ErrIdempotencyConflict occurs when an idempotency key is reused with
	// a different payload. Fatal: requires investigation.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")

	// ErrTransactionNotFound occurs on lookups and reversals of unknown
	// transactions.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyReversed occurs when reversing a transaction that is not in
	// the posted state.
	ErrAlreadyReversed = errors.New("transaction not reversible")
)
