package period

import (
	"errors"
	"time"
)

// Type is the granularity of an accounting period.
type Type string

const (
	TypeDaily   Type = "DAILY"
	TypeMonthly Type = "MONTHLY"
)

// Status is the lifecycle state of a period. HARD_CLOSED is terminal.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusSoftClosed Status = "SOFT_CLOSED"
	StatusHardClosed Status = "HARD_CLOSED"
)

// Period is one accounting period. Exactly one OPEN period may exist per
// (tenant, type), and same-type periods never overlap.
type Period struct {
	ID        string
	Tenant    string
	Type      Type
	Start     time.Time
	End       time.Time
	Status    Status
	ClosedBy  string
	ClosedAt  time.Time
	Notes     string
	CreatedAt time.Time
}

// Covers reports whether the period's range includes the date. Both bounds
// are inclusive.
func (p Period) Covers(date time.Time) bool {
	return !date.Before(p.Start) && !date.After(p.End)
}

// Decision is the posting-gate verdict for a date.
type Decision string

const (
	// DecisionAllowed: an OPEN period covers the date.
	DecisionAllowed Decision = "allowed"
	// DecisionOverrideRequired: the covering period is soft closed; a
	// recorded override can unblock the posting.
	DecisionOverrideRequired Decision = "override_required"
	// DecisionBlocked: the covering period is hard closed, or no period
	// covers the date.
	DecisionBlocked Decision = "blocked"
)

var (
	// ErrPeriodOverlap occurs when a new period overlaps an existing one of
	// the same type for the tenant.
	ErrPeriodOverlap = errors.New("period overlaps existing period")

	// ErrOpenPeriodExists occurs when an OPEN period of the type already
	// exists for the tenant.
	ErrOpenPeriodExists = errors.New("an open period of this type already exists")

	// ErrInvalidTransition occurs on illegal status changes, including any
	// attempt to reopen or to hard-close an OPEN period directly.
	ErrInvalidTransition = errors.New("invalid period transition")

	// ErrPeriodNotFound occurs on operations against unknown periods.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrInvalidRange occurs when a period range is empty or inverted.
	ErrInvalidRange = errors.New("invalid period range")
)
