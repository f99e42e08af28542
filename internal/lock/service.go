package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veloxpay/velox_ledger/internal/audit"
)

// Repository persists ledger locks. Create must reject overlapping active
// locks of the same type for the tenant.
type Repository interface {
	Create(ctx context.Context, l Lock) error
	Get(ctx context.Context, id string) (Lock, error)
	Update(ctx context.Context, l Lock) error

	// ActiveCovering returns active locks for the tenant whose range covers
	// the date.
	ActiveCovering(ctx context.Context, tenant string, date time.Time) ([]Lock, error)
}

// Service manages ledger freeze windows.
type Service struct {
	repo  Repository
	audit audit.Recorder
}

// NewService builds a lock manager.
func NewService(repo Repository, recorder audit.Recorder) *Service {
	return &Service{repo: repo, audit: recorder}
}

// ApplyInput captures an operator request for a freeze window.
type ApplyInput struct {
	Type   Type
	Tenant string
	Start  time.Time
	End    time.Time
	Reason string
	Actor  string
}

// Apply creates an AUDIT_LOCK or RECONCILIATION_LOCK. PERIOD_LOCKs are
// system generated and rejected here.
func (s *Service) Apply(ctx context.Context, input ApplyInput) (Lock, error) {
	if input.Type != TypeAudit && input.Type != TypeReconciliation {
		return Lock{}, fmt.Errorf("%w: %s", ErrSystemLockType, input.Type)
	}
	return s.create(ctx, input)
}

// ApplySystem creates a PERIOD_LOCK. Only the accounting period manager
// calls this, when a period is hard closed.
func (s *Service) ApplySystem(ctx context.Context, tenant string, start, end time.Time, reason string) (Lock, error) {
	return s.create(ctx, ApplyInput{
		Type:   TypePeriod,
		Tenant: tenant,
		Start:  start,
		End:    end,
		Reason: reason,
		Actor:  "system",
	})
}

// Release deactivates an AUDIT_LOCK or RECONCILIATION_LOCK. PERIOD_LOCKs
// cannot be released manually.
func (s *Service) Release(ctx context.Context, id, actor, notes string) (Lock, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return Lock{}, err
	}
	if l.Type == TypePeriod {
		return Lock{}, fmt.Errorf("%w: %s", ErrSystemLockType, id)
	}
	if l.Status != StatusActive {
		return Lock{}, fmt.Errorf("%w: %s", ErrLockNotActive, id)
	}

	l.Status = StatusReleased
	l.ReleasedBy = actor
	l.ReleasedAt = time.Now().UTC()
	l.Notes = notes
	if err := s.repo.Update(ctx, l); err != nil {
		return Lock{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionLockReleased,
		Entity:   "ledger_lock",
		EntityID: l.ID,
		Actor:    actor,
		Detail:   map[string]string{"type": string(l.Type), "notes": notes},
	})

	return l, nil
}

// CheckResult reports whether any active lock covers a date.
type CheckResult struct {
	Locked bool
	Locks  []Lock
}

// Check reports the active locks covering the date for the tenant. Reads
// remain allowed under a lock; only writes are gated.
func (s *Service) Check(ctx context.Context, tenant string, date time.Time) (CheckResult, error) {
	locks, err := s.repo.ActiveCovering(ctx, tenant, date)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Locked: len(locks) > 0, Locks: locks}, nil
}

// Get fetches a lock by id.
func (s *Service) Get(ctx context.Context, id string) (Lock, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) create(ctx context.Context, input ApplyInput) (Lock, error) {
	if input.End.Before(input.Start) {
		return Lock{}, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	if input.Tenant == "" {
		return Lock{}, fmt.Errorf("%w: tenant is required", ErrInvalidRange)
	}

	l := Lock{
		ID:       uuid.NewString(),
		Type:     input.Type,
		Tenant:   input.Tenant,
		Start:    input.Start.UTC(),
		End:      input.End.UTC(),
		Status:   StatusActive,
		Reason:   input.Reason,
		LockedBy: input.Actor,
		LockedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Lock{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionLockApplied,
		Entity:   "ledger_lock",
		EntityID: l.ID,
		Actor:    input.Actor,
		Detail:   map[string]string{"type": string(l.Type), "reason": l.Reason},
	})

	return l, nil
}
