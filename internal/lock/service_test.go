package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/ledger"
	"github.com/veloxpay/velox_ledger/internal/logging"
)

func newTestService(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	return NewService(repo, audit.NewLogRecorder(logging.Discard())), repo
}

func date(day int) time.Time {
	return time.Date(2026, time.February, day, 0, 0, 0, 0, time.UTC)
}

func TestApplyAuditLock(t *testing.T) {
	svc, _ := newTestService(t)

	l, err := svc.Apply(context.Background(), ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "quarterly audit", Actor: "auditor@velox",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.Status != StatusActive || l.Type != TypeAudit {
		t.Fatalf("unexpected lock: %+v", l)
	}
}

func TestApplyPeriodLockRejected(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), ApplyInput{
		Type: TypePeriod, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "manual freeze", Actor: "ops@velox",
	})
	if !errors.Is(err, ErrSystemLockType) {
		t.Fatalf("expected system lock type rejection, got %v", err)
	}
}

func TestApplyInvalidRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(10), End: date(1),
		Reason: "backwards", Actor: "auditor@velox",
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}
}

func TestOverlappingSameTypeRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "quarterly audit", Actor: "auditor@velox",
	}); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	_, err := svc.Apply(ctx, ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(5), End: date(15),
		Reason: "second audit", Actor: "auditor@velox",
	})
	if !errors.Is(err, ErrLockOverlap) {
		t.Fatalf("expected overlap rejection, got %v", err)
	}

	// A different type over the same window is fine.
	if _, err := svc.Apply(ctx, ApplyInput{
		Type: TypeReconciliation, Tenant: "acme", Start: date(5), End: date(15),
		Reason: "gateway recon", Actor: "recon@velox",
	}); err != nil {
		t.Fatalf("different type should coexist: %v", err)
	}
}

func TestReleaseLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.Apply(ctx, ApplyInput{
		Type: TypeReconciliation, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "recon window", Actor: "recon@velox",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	released, err := svc.Release(ctx, l.ID, "recon@velox", "recon complete")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != StatusReleased || released.ReleasedBy != "recon@velox" {
		t.Fatalf("unexpected lock after release: %+v", released)
	}

	if _, err := svc.Release(ctx, l.ID, "recon@velox", "again"); !errors.Is(err, ErrLockNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}

	// The window admits a new lock once released.
	if _, err := svc.Apply(ctx, ApplyInput{
		Type: TypeReconciliation, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "recon redo", Actor: "recon@velox",
	}); err != nil {
		t.Fatalf("apply after release: %v", err)
	}
}

func TestPeriodLockCannotBeReleased(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.ApplySystem(ctx, "acme", date(1), date(10), "hard close")
	if err != nil {
		t.Fatalf("apply system: %v", err)
	}
	if _, err := svc.Release(ctx, l.ID, "ops@velox", "please"); !errors.Is(err, ErrSystemLockType) {
		t.Fatalf("expected period lock release rejection, got %v", err)
	}
}

func TestCheckReportsCoveringLocks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "audit", Actor: "auditor@velox",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res, err := svc.Check(ctx, "acme", date(5))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Locked || len(res.Locks) != 1 {
		t.Fatalf("expected covering lock, got %+v", res)
	}

	res, err = svc.Check(ctx, "acme", date(20))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Locked {
		t.Fatalf("expected no lock outside window, got %+v", res)
	}
}

func TestCheckPostingGate(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Apply(ctx, ApplyInput{
		Type: TypeAudit, Tenant: "acme", Start: date(1), End: date(10),
		Reason: "audit freeze", Actor: "auditor@velox",
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := repo.CheckPosting(ctx, nil, "acme", date(5)); !errors.Is(err, ledger.ErrLockActive) {
		t.Fatalf("expected lock active, got %v", err)
	}
	if err := repo.CheckPosting(ctx, nil, "acme", date(20)); err != nil {
		t.Fatalf("expected no gate outside window, got %v", err)
	}
	if err := repo.CheckPosting(ctx, nil, "other-tenant", date(5)); err != nil {
		t.Fatalf("expected no gate for other tenant, got %v", err)
	}
}
