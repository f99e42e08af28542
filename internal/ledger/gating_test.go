package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/ledger"
	"github.com/veloxpay/velox_ledger/internal/lock"
	"github.com/veloxpay/velox_ledger/internal/logging"
	"github.com/veloxpay/velox_ledger/internal/override"
	"github.com/veloxpay/velox_ledger/internal/period"
)

// fixture wires the full posting path: ledger with period and lock gates,
// plus the override log, all in memory.
type fixture struct {
	ledger    *ledger.Service
	periods   *period.Service
	locks     *lock.Service
	overrides *override.MemoryRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	recorder := audit.NewLogRecorder(logging.Discard())

	lockRepo := lock.NewMemoryRepository()
	periodRepo := period.NewMemoryRepository()
	overrideRepo := override.NewMemoryRepository()

	overrideSvc := override.NewService(overrideRepo, recorder, "finance_authority", 20)
	lockSvc := lock.NewService(lockRepo, recorder)
	periodSvc := period.NewService(periodRepo, lockSvc, recorder)

	ledgerRepo := ledger.NewMemoryRepository(periodRepo, lockRepo)
	ledgerSvc := ledger.NewService(ledgerRepo, overrideSvc, recorder, decimal.RequireFromString("0.01"), logging.Discard())

	ctx := context.Background()
	for _, a := range []ledger.Account{
		{Code: ledger.EscrowAccountCode, Type: ledger.AccountTypeEscrow, NormalBalance: ledger.Debit, Category: ledger.CategoryAsset},
		{Code: "merchant:acme", Type: ledger.AccountTypeMerchant, NormalBalance: ledger.Credit, Category: ledger.CategoryLiability},
	} {
		if _, err := ledgerSvc.CreateAccount(ctx, a); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	return fixture{ledger: ledgerSvc, periods: periodSvc, locks: lockSvc, overrides: overrideRepo}
}

func postInput(date time.Time) ledger.PostInput {
	return ledger.PostInput{
		Tenant:        "acme",
		EventType:     "manual_adjustment",
		EffectiveDate: date,
		Entries: []ledger.EntryInput{
			{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Debit, Amount: decimal.RequireFromString("100.00"), Currency: "USD"},
			{AccountCode: "merchant:acme", Direction: ledger.Credit, Amount: decimal.RequireFromString("100.00"), Currency: "USD"},
		},
	}
}

func day(d int) time.Time {
	return time.Date(2026, time.January, d, 12, 0, 0, 0, time.UTC)
}

func openJanuary(t *testing.T, f fixture) period.Period {
	t.Helper()
	p, err := f.periods.Create(context.Background(), period.CreateInput{
		Tenant: "acme",
		Type:   period.TypeMonthly,
		Start:  day(1),
		End:    day(31),
		Actor:  "closer@velox",
	})
	if err != nil {
		t.Fatalf("create period: %v", err)
	}
	return p
}

func TestPostIntoOpenPeriod(t *testing.T) {
	f := newFixture(t)
	openJanuary(t, f)

	if _, err := f.ledger.Post(context.Background(), postInput(day(15))); err != nil {
		t.Fatalf("post into open period: %v", err)
	}
}

func TestPostOutsideAnyPeriodBlocked(t *testing.T) {
	f := newFixture(t)
	openJanuary(t, f)

	_, err := f.ledger.Post(context.Background(), postInput(time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)))
	if !errors.Is(err, ledger.ErrPeriodNotOpen) {
		t.Fatalf("expected period not open, got %v", err)
	}
}

func TestSoftClosedRequiresOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openJanuary(t, f)

	if _, err := f.periods.Close(ctx, period.CloseInput{PeriodID: p.ID, Target: period.StatusSoftClosed, Actor: "closer@velox"}); err != nil {
		t.Fatalf("soft close: %v", err)
	}

	_, err := f.ledger.Post(ctx, postInput(day(15)))
	if !errors.Is(err, ledger.ErrOverrideRequired) {
		t.Fatalf("expected override required, got %v", err)
	}

	// Resubmit with a valid override from the finance authority.
	input := postInput(day(15))
	input.Override = &ledger.Override{
		Justification: "late gateway file arrived after the soft close",
		Actor:         "cfo@velox",
		Role:          "finance_authority",
	}
	if _, err := f.ledger.Post(ctx, input); err != nil {
		t.Fatalf("post with override: %v", err)
	}

	records := f.overrides.All()
	if len(records) != 1 {
		t.Fatalf("expected 1 override record, got %d", len(records))
	}
	if records[0].Outcome != override.OutcomeGranted {
		t.Fatalf("expected granted, got %s", records[0].Outcome)
	}
}

func TestSoftClosedOverrideDeniedForWrongRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openJanuary(t, f)
	if _, err := f.periods.Close(ctx, period.CloseInput{PeriodID: p.ID, Target: period.StatusSoftClosed, Actor: "closer@velox"}); err != nil {
		t.Fatalf("soft close: %v", err)
	}

	input := postInput(day(15))
	input.Override = &ledger.Override{
		Justification: "late gateway file arrived after the soft close",
		Actor:         "intern@velox",
		Role:          "support",
	}
	if _, err := f.ledger.Post(ctx, input); !errors.Is(err, override.ErrUnauthorizedRole) {
		t.Fatalf("expected unauthorized role, got %v", err)
	}

	// The denied attempt is still on the log.
	records := f.overrides.All()
	if len(records) != 1 || records[0].Outcome != override.OutcomeDenied {
		t.Fatalf("denied attempt not recorded: %+v", records)
	}
}

func TestHardClosedBlocksEvenWithOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := openJanuary(t, f)

	if _, err := f.periods.Close(ctx, period.CloseInput{PeriodID: p.ID, Target: period.StatusSoftClosed, Actor: "closer@velox"}); err != nil {
		t.Fatalf("soft close: %v", err)
	}
	if _, err := f.periods.Close(ctx, period.CloseInput{PeriodID: p.ID, Target: period.StatusHardClosed, Actor: "closer@velox"}); err != nil {
		t.Fatalf("hard close: %v", err)
	}

	input := postInput(day(15))
	input.Override = &ledger.Override{
		Justification: "trying to force a posting into a hard closed period",
		Actor:         "cfo@velox",
		Role:          "finance_authority",
	}
	_, err := f.ledger.Post(ctx, input)
	// The period lock created by the hard close rejects the posting even
	// though the override itself was granted.
	if !errors.Is(err, ledger.ErrPeriodClosed) && !errors.Is(err, ledger.ErrLockActive) {
		t.Fatalf("expected hard close rejection, got %v", err)
	}
}

func TestAuditLockBlocksPostingInOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	openJanuary(t, f)

	if _, err := f.locks.Apply(ctx, lock.ApplyInput{
		Type:   lock.TypeAudit,
		Tenant: "acme",
		Start:  day(10),
		End:    day(20),
		Reason: "external audit of january books",
		Actor:  "auditor@velox",
	}); err != nil {
		t.Fatalf("apply audit lock: %v", err)
	}

	if _, err := f.ledger.Post(ctx, postInput(day(15))); !errors.Is(err, ledger.ErrLockActive) {
		t.Fatalf("expected lock active, got %v", err)
	}

	// Outside the locked window the open period still admits postings.
	if _, err := f.ledger.Post(ctx, postInput(day(25))); err != nil {
		t.Fatalf("post outside lock window: %v", err)
	}
}
