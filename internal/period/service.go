package period

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/lock"
)

// Repository persists accounting periods. Create must atomically reject
// overlap and second-OPEN violations.
type Repository interface {
	Create(ctx context.Context, p Period) error
	Get(ctx context.Context, id string) (Period, error)
	Update(ctx context.Context, p Period) error

	// Covering returns all periods (any type) for the tenant whose range
	// includes the date.
	Covering(ctx context.Context, tenant string, date time.Time) ([]Period, error)
}

// SystemLocker creates the system-generated PERIOD_LOCK on hard close.
type SystemLocker interface {
	ApplySystem(ctx context.Context, tenant string, start, end time.Time, reason string) (lock.Lock, error)
}

// Service manages the accounting-period lifecycle.
//
// Gaps between consecutive periods are permitted: postings dated inside a
// gap are blocked anyway because no period covers them.
type Service struct {
	repo  Repository
	locks SystemLocker
	audit audit.Recorder
}

// NewService builds an accounting period manager.
func NewService(repo Repository, locks SystemLocker, recorder audit.Recorder) *Service {
	return &Service{repo: repo, locks: locks, audit: recorder}
}

// CreateInput captures a new-period request.
type CreateInput struct {
	Tenant string
	Type   Type
	Start  time.Time
	End    time.Time
	Actor  string
}

// Create opens a new period. Overlap with any same-type period and a second
// OPEN period of the type are both rejected.
func (s *Service) Create(ctx context.Context, input CreateInput) (Period, error) {
	if input.Tenant == "" {
		return Period{}, fmt.Errorf("%w: tenant is required", ErrInvalidRange)
	}
	if input.Type != TypeDaily && input.Type != TypeMonthly {
		return Period{}, fmt.Errorf("%w: unknown period type %q", ErrInvalidRange, input.Type)
	}
	if input.End.Before(input.Start) {
		return Period{}, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}

	p := Period{
		ID:        uuid.NewString(),
		Tenant:    input.Tenant,
		Type:      input.Type,
		Start:     input.Start.UTC(),
		End:       input.End.UTC(),
		Status:    StatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return Period{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionPeriodCreated,
		Entity:   "accounting_period",
		EntityID: p.ID,
		Actor:    input.Actor,
		Detail:   map[string]string{"type": string(p.Type), "tenant": p.Tenant},
	})

	return p, nil
}

// CloseInput captures a close-period request.
type CloseInput struct {
	PeriodID string
	Target   Status
	Actor    string
	Notes    string
}

// Close advances a period's lifecycle. Legal transitions are
// OPEN→SOFT_CLOSED and SOFT_CLOSED→HARD_CLOSED; everything else fails.
// Hard closing creates a PERIOD_LOCK spanning exactly the period's range
// and is irreversible.
func (s *Service) Close(ctx context.Context, input CloseInput) (Period, error) {
	p, err := s.repo.Get(ctx, input.PeriodID)
	if err != nil {
		return Period{}, err
	}

	switch {
	case p.Status == StatusOpen && input.Target == StatusSoftClosed:
	case p.Status == StatusSoftClosed && input.Target == StatusHardClosed:
	default:
		return Period{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, input.Target)
	}

	if input.Target == StatusHardClosed {
		// The lock lands before the status flips: if the update fails the
		// window stays frozen rather than half closed.
		reason := fmt.Sprintf("hard close of %s period %s", p.Type, p.ID)
		if _, err := s.locks.ApplySystem(ctx, p.Tenant, p.Start, p.End, reason); err != nil {
			return Period{}, fmt.Errorf("apply period lock: %w", err)
		}
	}

	p.Status = input.Target
	p.ClosedBy = input.Actor
	p.ClosedAt = time.Now().UTC()
	p.Notes = input.Notes
	if err := s.repo.Update(ctx, p); err != nil {
		return Period{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionPeriodClosed,
		Entity:   "accounting_period",
		EntityID: p.ID,
		Actor:    input.Actor,
		Detail:   map[string]string{"status": string(p.Status), "notes": input.Notes},
	})

	return p, nil
}

// CheckPosting reports whether a posting dated at the given date would be
// allowed for the tenant and period type.
func (s *Service) CheckPosting(ctx context.Context, tenant string, date time.Time, ptype Type) (Decision, error) {
	periods, err := s.repo.Covering(ctx, tenant, date)
	if err != nil {
		return DecisionBlocked, err
	}

	// Same-type periods never overlap, so at most one can cover the date.
	for _, p := range periods {
		if p.Type != ptype {
			continue
		}
		switch p.Status {
		case StatusOpen:
			return DecisionAllowed, nil
		case StatusSoftClosed:
			return DecisionOverrideRequired, nil
		default:
			return DecisionBlocked, nil
		}
	}
	return DecisionBlocked, nil
}

// Get fetches a period by id.
func (s *Service) Get(ctx context.Context, id string) (Period, error) {
	return s.repo.Get(ctx, id)
}
