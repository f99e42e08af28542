package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/logging"
)

func newTestService(t *testing.T, gates ...PostingGate) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository(gates...)
	svc := NewService(repo, nil, audit.NewLogRecorder(logging.Discard()), decimal.RequireFromString("0.01"), logging.Discard())

	ctx := context.Background()
	accounts := []Account{
		{Code: EscrowAccountCode, Type: AccountTypeEscrow, NormalBalance: Debit, Category: CategoryAsset},
		{Code: "merchant:acme", Type: AccountTypeMerchant, NormalBalance: Credit, Category: CategoryLiability},
		{Code: PlatformRevenueAccountCode, Type: AccountTypePlatformRevenue, NormalBalance: Credit, Category: CategoryRevenue},
		{Code: SettlementPayableAccountCode, Type: AccountTypeMerchant, NormalBalance: Credit, Category: CategoryLiability},
	}
	for _, a := range accounts {
		if _, err := svc.CreateAccount(ctx, a); err != nil {
			t.Fatalf("create account %s: %v", a.Code, err)
		}
	}
	return svc, repo
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balancedInput(debit, credit string) PostInput {
	return PostInput{
		Tenant:    "acme",
		EventType: "payment_success",
		Entries: []EntryInput{
			{AccountCode: EscrowAccountCode, Direction: Debit, Amount: amount(debit), Currency: "USD"},
			{AccountCode: "merchant:acme", Direction: Credit, Amount: amount(credit), Currency: "USD"},
		},
	}
}

func TestPostBalancedTransaction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	txn, err := svc.Post(ctx, balancedInput("1000.00", "1000.00"))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if txn.Status != StatusPosted {
		t.Fatalf("expected posted, got %s", txn.Status)
	}
	if len(txn.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(txn.Entries))
	}

	escrow, err := svc.Balance(ctx, EscrowAccountCode)
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if !escrow.Amount.Equal(amount("1000.00")) {
		t.Fatalf("expected escrow 1000.00, got %s", escrow.Amount)
	}

	merchant, err := svc.Balance(ctx, "merchant:acme")
	if err != nil {
		t.Fatalf("merchant balance: %v", err)
	}
	if !merchant.Amount.Equal(amount("1000.00")) {
		t.Fatalf("expected merchant 1000.00, got %s", merchant.Amount)
	}
}

func TestPostUnbalancedFails(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Post(context.Background(), balancedInput("1000.00", "999.00"))
	if !errors.Is(err, ErrUnbalancedTransaction) {
		t.Fatalf("expected unbalanced error, got %v", err)
	}
}

func TestPostWithinTolerance(t *testing.T) {
	svc, _ := newTestService(t)

	// 0.005 drift is inside the configured 0.01 tolerance.
	if _, err := svc.Post(context.Background(), balancedInput("100.005", "100.00")); err != nil {
		t.Fatalf("expected drift inside tolerance to post, got %v", err)
	}
}

func TestPostValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]PostInput{
		"missing tenant": {
			EventType: "payment_success",
			Entries:   balancedInput("10.00", "10.00").Entries,
		},
		"missing event type": {
			Tenant:  "acme",
			Entries: balancedInput("10.00", "10.00").Entries,
		},
		"no entries": {
			Tenant:    "acme",
			EventType: "payment_success",
		},
		"zero amount": {
			Tenant:    "acme",
			EventType: "payment_success",
			Entries: []EntryInput{
				{AccountCode: EscrowAccountCode, Direction: Debit, Amount: decimal.Zero, Currency: "USD"},
			},
		},
		"bad direction": {
			Tenant:    "acme",
			EventType: "payment_success",
			Entries: []EntryInput{
				{AccountCode: EscrowAccountCode, Direction: "sideways", Amount: amount("10.00"), Currency: "USD"},
			},
		},
	}
	for name, input := range cases {
		if _, err := svc.Post(ctx, input); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestPostUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	input := balancedInput("10.00", "10.00")
	input.Entries[0].AccountCode = "does-not-exist"
	if _, err := svc.Post(context.Background(), input); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestPostInactiveAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_ = repo.CreateAccount(ctx, Account{
		Code: "merchant:frozen", Type: AccountTypeMerchant, NormalBalance: Credit,
		Category: CategoryLiability, Status: AccountInactive,
	})

	input := balancedInput("10.00", "10.00")
	input.Entries[1].AccountCode = "merchant:frozen"
	if _, err := svc.Post(ctx, input); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestIdempotentReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	input := balancedInput("250.00", "250.00")
	input.IdempotencyKey = "evt:payment_success:PAY-1"

	first, err := svc.Post(ctx, input)
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	second, err := svc.Post(ctx, input)
	if err != nil {
		t.Fatalf("replay post: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay created a new transaction: %s != %s", first.ID, second.ID)
	}

	// Same account should not be double-credited by the replay.
	merchant, _ := svc.Balance(ctx, "merchant:acme")
	if !merchant.Amount.Equal(amount("250.00")) {
		t.Fatalf("replay double-posted: balance %s", merchant.Amount)
	}
}

func TestIdempotentReplayAcrossSecondBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// No effective date: the posting date defaults to the wall clock, which
	// must not leak into the payload identity. A redelivered settlement
	// posting arrives seconds later and has to replay, not conflict.
	input := balancedInput("120.00", "120.00")
	input.EventType = "settlement_reservation"
	input.IdempotencyKey = "stl:S1:reserve:0"

	first, err := svc.Post(ctx, input)
	if err != nil {
		t.Fatalf("first post: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	second, err := svc.Post(ctx, input)
	if err != nil {
		t.Fatalf("replay after delay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("delayed replay created a new transaction: %s != %s", first.ID, second.ID)
	}
}

func TestIdempotencyConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	input := balancedInput("250.00", "250.00")
	input.IdempotencyKey = "evt:payment_success:PAY-2"
	if _, err := svc.Post(ctx, input); err != nil {
		t.Fatalf("first post: %v", err)
	}

	conflicting := balancedInput("300.00", "300.00")
	conflicting.IdempotencyKey = input.IdempotencyKey
	if _, err := svc.Post(ctx, conflicting); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestReversalRestoresBalances(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	txn, err := svc.Post(ctx, balancedInput("1000.00", "1000.00"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	reversal, err := svc.Reverse(ctx, ReverseInput{TransactionID: txn.ID, Reason: "operator correction", Actor: "ops@velox"})
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversal.ReversesID != txn.ID {
		t.Fatalf("reversal not linked to original")
	}
	for i, e := range reversal.Entries {
		if e.Direction != txn.Entries[i].Direction.Opposite() {
			t.Fatalf("entry %d direction not mirrored", i)
		}
		if !e.Amount.Equal(txn.Entries[i].Amount) {
			t.Fatalf("entry %d amount changed on reversal", i)
		}
	}

	escrow, _ := svc.Balance(ctx, EscrowAccountCode)
	merchant, _ := svc.Balance(ctx, "merchant:acme")
	if !escrow.Amount.IsZero() || !merchant.Amount.IsZero() {
		t.Fatalf("balances not restored: escrow %s, merchant %s", escrow.Amount, merchant.Amount)
	}

	original, _ := svc.GetTransaction(ctx, txn.ID)
	if original.Status != StatusReversed || original.ReversedByID != reversal.ID {
		t.Fatalf("original not marked reversed: %+v", original)
	}
}

func TestDoubleReversalRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	txn, err := svc.Post(ctx, balancedInput("10.00", "10.00"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := svc.Reverse(ctx, ReverseInput{TransactionID: txn.ID, Reason: "first", Actor: "ops"}); err != nil {
		t.Fatalf("first reverse: %v", err)
	}
	if _, err := svc.Reverse(ctx, ReverseInput{TransactionID: txn.ID, Reason: "second", Actor: "ops"}); !errors.Is(err, ErrAlreadyReversed) {
		t.Fatalf("expected already reversed, got %v", err)
	}
}

func TestReverseUnknownTransaction(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reverse(context.Background(), ReverseInput{TransactionID: "nope", Reason: "why", Actor: "ops"})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTrialBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Post(ctx, balancedInput("500.00", "500.00")); err != nil {
		t.Fatalf("post: %v", err)
	}

	rows, err := svc.TrialBalance(ctx, "acme")
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if !row.Amount.Equal(amount("500.00")) {
			t.Fatalf("account %s: expected 500.00, got %s", row.AccountCode, row.Amount)
		}
	}
}

func TestPostCustomReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	input := balancedInput("75.00", "75.00")
	input.Reference = "PAY-REF-42"
	if _, err := svc.Post(ctx, input); err != nil {
		t.Fatalf("post: %v", err)
	}

	txn, err := svc.GetTransactionByReference(ctx, "PAY-REF-42")
	if err != nil {
		t.Fatalf("lookup by reference: %v", err)
	}
	if !txn.TotalDebits().Equal(amount("75.00")) {
		t.Fatalf("unexpected transaction: %+v", txn)
	}
}
