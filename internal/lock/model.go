package lock

import (
	"errors"
	"time"
)

// Type distinguishes the freeze windows the ledger recognizes.
type Type string

const (
	// TypePeriod is system-generated when a period is hard closed. It can
	// never be released manually.
	TypePeriod Type = "PERIOD_LOCK"
	// TypeAudit freezes a window while auditors work through it.
	TypeAudit Type = "AUDIT_LOCK"
	// TypeReconciliation freezes a window during statement matching.
	TypeReconciliation Type = "RECONCILIATION_LOCK"
)

// Status of a lock.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReleased Status = "RELEASED"
)

// Lock is a freeze window preventing postings into a date range.
type Lock struct {
	ID         string
	Type       Type
	Tenant     string
	Start      time.Time
	End        time.Time
	Status     Status
	Reason     string
	LockedBy   string
	LockedAt   time.Time
	ReleasedBy string
	ReleasedAt time.Time
	Notes      string
}

// Covers reports whether the lock's date range includes the given date.
// Both bounds are inclusive.
func (l Lock) Covers(date time.Time) bool {
	return !date.Before(l.Start) && !date.After(l.End)
}

var (
	// ErrLockOverlap occurs when two active locks of the same type would
	// cover overlapping ranges.
	ErrLockOverlap = errors.New("overlapping active lock of same type")

	// ErrSystemLockType occurs when a caller tries to apply or release a
	// PERIOD_LOCK manually.
	ErrSystemLockType = errors.New("period locks are system managed")

	// ErrLockNotFound occurs on operations against unknown locks.
	ErrLockNotFound = errors.New("lock not found")

	// ErrLockNotActive occurs when releasing a lock that is not active.
	ErrLockNotActive = errors.New("lock not active")

	// ErrInvalidRange occurs when a lock range is empty or inverted.
	ErrInvalidRange = errors.New("invalid lock range")
)
