package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/ledger"
	"github.com/veloxpay/velox_ledger/internal/logging"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestHandler(t *testing.T) (*Handler, *ledger.Service) {
	t.Helper()

	books := ledger.NewService(
		ledger.NewMemoryRepository(), nil,
		audit.NewLogRecorder(logging.Discard()),
		amount("0.01"), logging.Discard(),
	)
	ctx := context.Background()
	accounts := []ledger.Account{
		{Code: ledger.EscrowAccountCode, Type: ledger.AccountTypeEscrow, NormalBalance: ledger.Debit, Category: ledger.CategoryAsset},
		{Code: "merchant:acme", Type: ledger.AccountTypeMerchant, NormalBalance: ledger.Credit, Category: ledger.CategoryLiability},
		{Code: ledger.PlatformRevenueAccountCode, Type: ledger.AccountTypePlatformRevenue, NormalBalance: ledger.Credit, Category: ledger.CategoryRevenue},
	}
	for _, a := range accounts {
		if _, err := books.CreateAccount(ctx, a); err != nil {
			t.Fatalf("create account %s: %v", a.Code, err)
		}
	}
	return NewHandler(books, logging.Discard()), books
}

func mustBalance(t *testing.T, books *ledger.Service, code, want string) {
	t.Helper()
	b, err := books.Balance(context.Background(), code)
	if err != nil {
		t.Fatalf("balance %s: %v", code, err)
	}
	if !b.Amount.Equal(amount(want)) {
		t.Fatalf("balance %s = %s, want %s", code, b.Amount, want)
	}
}

func TestPaymentSuccessSplitsFee(t *testing.T) {
	h, books := newTestHandler(t)

	txn, err := h.Handle(context.Background(), Event{
		Type:            PaymentSuccess,
		Tenant:          "acme",
		Reference:       "cap-001",
		MerchantAccount: "merchant:acme",
		Amount:          amount("100.00"),
		Fee:             amount("2.90"),
		Currency:        "USD",
		OccurredAt:      time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if txn.Reference != "cap-001" {
		t.Fatalf("transaction reference = %q, want upstream reference", txn.Reference)
	}
	if len(txn.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(txn.Entries))
	}

	mustBalance(t, books, ledger.EscrowAccountCode, "100.00")
	mustBalance(t, books, "merchant:acme", "97.10")
	mustBalance(t, books, ledger.PlatformRevenueAccountCode, "2.90")
}

func TestPaymentSuccessWithoutFee(t *testing.T) {
	h, _ := newTestHandler(t)

	txn, err := h.Handle(context.Background(), Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-002",
		MerchantAccount: "merchant:acme", Amount: amount("50.00"), Currency: "USD",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	// No fee, no revenue leg.
	if len(txn.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(txn.Entries))
	}
}

func TestPaymentSuccessFeeExceedsAmount(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Handle(context.Background(), Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-003",
		MerchantAccount: "merchant:acme", Amount: amount("1.00"), Fee: amount("2.00"), Currency: "USD",
	})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefundReturnsNetFromMerchant(t *testing.T) {
	h, books := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.Handle(ctx, Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-010",
		MerchantAccount: "merchant:acme", Amount: amount("100.00"), Fee: amount("3.00"), Currency: "USD",
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	if _, err := h.Handle(ctx, Event{
		Type: Refund, Tenant: "acme", Reference: "ref-010",
		MerchantAccount: "merchant:acme", Amount: amount("40.00"), Currency: "USD",
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	// The fee stays with the platform on refund.
	mustBalance(t, books, ledger.EscrowAccountCode, "60.00")
	mustBalance(t, books, "merchant:acme", "57.00")
	mustBalance(t, books, ledger.PlatformRevenueAccountCode, "3.00")
}

func TestChargebackClawsBackWithFee(t *testing.T) {
	h, books := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.Handle(ctx, Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-020",
		MerchantAccount: "merchant:acme", Amount: amount("200.00"), Fee: amount("6.00"), Currency: "USD",
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	if _, err := h.Handle(ctx, Event{
		Type: Chargeback, Tenant: "acme", Reference: "dsp-020",
		MerchantAccount: "merchant:acme", Amount: amount("200.00"), Fee: amount("15.00"), Currency: "USD",
	}); err != nil {
		t.Fatalf("chargeback: %v", err)
	}

	// 194 credited on capture, 215 debited on dispute.
	mustBalance(t, books, ledger.EscrowAccountCode, "0.00")
	mustBalance(t, books, "merchant:acme", "-21.00")
	mustBalance(t, books, ledger.PlatformRevenueAccountCode, "21.00")
}

func TestManualAdjustmentRequiresEntries(t *testing.T) {
	h, _ := newTestHandler(t)

	_, err := h.Handle(context.Background(), Event{
		Type: ManualAdjustment, Tenant: "acme", Reference: "adj-001",
	})
	if !errors.Is(err, ErrEntriesRequired) {
		t.Fatalf("expected entries required, got %v", err)
	}
}

func TestManualAdjustmentBooksExplicitLegs(t *testing.T) {
	h, books := newTestHandler(t)

	_, err := h.Handle(context.Background(), Event{
		Type: ManualAdjustment, Tenant: "acme", Reference: "adj-002",
		Entries: []ledger.EntryInput{
			{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Debit, Amount: amount("12.34"), Currency: "USD"},
			{AccountCode: "merchant:acme", Direction: ledger.Credit, Amount: amount("12.34"), Currency: "USD"},
		},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	mustBalance(t, books, "merchant:acme", "12.34")
}

func TestHandleValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	ctx := context.Background()

	if _, err := h.Handle(ctx, Event{Type: PaymentSuccess, Tenant: "acme"}); !errors.Is(err, ErrMissingReference) {
		t.Fatalf("missing reference: %v", err)
	}
	if _, err := h.Handle(ctx, Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-x", Amount: amount("1"),
	}); !errors.Is(err, ErrMissingMerchant) {
		t.Fatalf("missing merchant: %v", err)
	}
	if _, err := h.Handle(ctx, Event{
		Type: "wire_transfer", Tenant: "acme", Reference: "w-1",
	}); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("unknown type: %v", err)
	}
}

func TestRedeliveryReplaysOriginal(t *testing.T) {
	h, books := newTestHandler(t)
	ctx := context.Background()

	ev := Event{
		Type: PaymentSuccess, Tenant: "acme", Reference: "cap-dup",
		MerchantAccount: "merchant:acme", Amount: amount("75.00"), Fee: amount("1.50"), Currency: "USD",
		OccurredAt: time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC),
	}
	first, err := h.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := h.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("redelivery created a new transaction: %s vs %s", first.ID, second.ID)
	}

	mustBalance(t, books, "merchant:acme", "73.50")
}
