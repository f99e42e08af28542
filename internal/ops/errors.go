package ops

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/veloxpay/velox_ledger/internal/events"
	"github.com/veloxpay/velox_ledger/internal/ledger"
	"github.com/veloxpay/velox_ledger/internal/lock"
	"github.com/veloxpay/velox_ledger/internal/override"
	"github.com/veloxpay/velox_ledger/internal/period"
	"github.com/veloxpay/velox_ledger/internal/reconciliation"
	"github.com/veloxpay/velox_ledger/internal/settlement"
)

// fail translates domain sentinel errors into typed HTTP errors.
func fail(err error) error {
	return fiber.NewError(statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, period.ErrPeriodNotFound),
		errors.Is(err, lock.ErrLockNotFound),
		errors.Is(err, settlement.ErrSettlementNotFound),
		errors.Is(err, reconciliation.ErrBatchNotFound),
		errors.Is(err, reconciliation.ErrItemNotFound):
		return http.StatusNotFound

	case errors.Is(err, ledger.ErrIdempotencyConflict),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrPeriodNotOpen),
		errors.Is(err, ledger.ErrPeriodClosed),
		errors.Is(err, ledger.ErrOverrideRequired),
		errors.Is(err, ledger.ErrLockActive),
		errors.Is(err, ledger.ErrAccountInactive),
		errors.Is(err, period.ErrPeriodOverlap),
		errors.Is(err, period.ErrOpenPeriodExists),
		errors.Is(err, period.ErrInvalidTransition),
		errors.Is(err, lock.ErrLockOverlap),
		errors.Is(err, lock.ErrLockNotActive),
		errors.Is(err, settlement.ErrInvalidStateTransition),
		errors.Is(err, settlement.ErrMaxRetriesExceeded),
		errors.Is(err, reconciliation.ErrBatchCompleted):
		return http.StatusConflict

	case errors.Is(err, override.ErrUnauthorizedRole):
		return http.StatusForbidden

	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrUnbalancedTransaction),
		errors.Is(err, period.ErrInvalidRange),
		errors.Is(err, lock.ErrInvalidRange),
		errors.Is(err, lock.ErrSystemLockType),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrMissingBankReference),
		errors.Is(err, override.ErrJustificationTooShort),
		errors.Is(err, reconciliation.ErrInvalidResolution),
		errors.Is(err, events.ErrUnknownEventType),
		errors.Is(err, events.ErrMissingReference),
		errors.Is(err, events.ErrMissingMerchant),
		errors.Is(err, events.ErrEntriesRequired):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// parseDate accepts RFC 3339 timestamps and bare dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
