package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/ledger"
)

// Type identifies a business event the platform ingests.
type Type string

const (
	PaymentSuccess   Type = "payment_success"
	Refund           Type = "refund"
	Chargeback       Type = "chargeback"
	ManualAdjustment Type = "manual_adjustment"
)

// Event is one business event to book. Reference is the upstream identifier
// (gateway capture id, refund id, dispute id) and doubles as the idempotency
// key, so redelivery cannot double-post.
type Event struct {
	Type            Type
	Tenant          string
	Reference       string
	MerchantAccount string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	Currency        string
	OccurredAt      time.Time
	// Entries carries the explicit legs of a manual adjustment. Ignored
	// for the other event types, whose legs are fixed by the handler.
	Entries  []ledger.EntryInput
	Override *ledger.Override
}

var (
	// ErrUnknownEventType occurs for event types the handler cannot book.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMissingReference occurs when an event has no upstream reference.
	ErrMissingReference = errors.New("event reference required")

	// ErrMissingMerchant occurs when a merchant-scoped event names no
	// merchant account.
	ErrMissingMerchant = errors.New("merchant account required")

	// ErrEntriesRequired occurs when a manual adjustment carries no legs.
	ErrEntriesRequired = errors.New("manual adjustment requires explicit entries")
)

// Poster is the slice of the ledger the handler posts through.
// *ledger.Service satisfies it.
type Poster interface {
	Post(ctx context.Context, input ledger.PostInput) (ledger.Transaction, error)
}

// Handler translates business events into balanced ledger postings. Each
// event becomes exactly one transaction; the handler knows nothing about
// payment methods or gateways beyond the amounts on the event.
type Handler struct {
	ledger Poster
	logger *slog.Logger
}

// NewHandler constructs an event handler.
func NewHandler(poster Poster, logger *slog.Logger) *Handler {
	return &Handler{ledger: poster, logger: logger}
}

// Handle books the event. Redelivered events replay the original
// transaction through the ledger's idempotency machinery.
func (h *Handler) Handle(ctx context.Context, ev Event) (ledger.Transaction, error) {
	if ev.Reference == "" {
		return ledger.Transaction{}, ErrMissingReference
	}

	entries, err := h.entriesFor(ev)
	if err != nil {
		return ledger.Transaction{}, err
	}

	txn, err := h.ledger.Post(ctx, ledger.PostInput{
		Tenant:         ev.Tenant,
		Reference:      ev.Reference,
		EventType:      string(ev.Type),
		IdempotencyKey: fmt.Sprintf("evt:%s:%s", ev.Type, ev.Reference),
		EffectiveDate:  ev.OccurredAt,
		Entries:        entries,
		Override:       ev.Override,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}

	h.logger.Info("event booked",
		"type", ev.Type,
		"reference", ev.Reference,
		"transaction", txn.Reference,
	)
	return txn, nil
}

func (h *Handler) entriesFor(ev Event) ([]ledger.EntryInput, error) {
	switch ev.Type {
	case PaymentSuccess:
		return paymentSuccessEntries(ev)
	case Refund:
		return refundEntries(ev)
	case Chargeback:
		return chargebackEntries(ev)
	case ManualAdjustment:
		if len(ev.Entries) == 0 {
			return nil, ErrEntriesRequired
		}
		return ev.Entries, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
}

// paymentSuccessEntries books a captured payment: the gross lands in escrow,
// the merchant is owed the net, the platform keeps the fee.
func paymentSuccessEntries(ev Event) ([]ledger.EntryInput, error) {
	if err := requireMerchantAmount(ev); err != nil {
		return nil, err
	}
	net := ev.Amount.Sub(ev.Fee)
	if net.IsNegative() {
		return nil, fmt.Errorf("%w: fee %s exceeds amount %s", ledger.ErrValidation, ev.Fee, ev.Amount)
	}
	entries := []ledger.EntryInput{
		{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Debit, Amount: ev.Amount, Currency: ev.Currency},
		{AccountCode: ev.MerchantAccount, Direction: ledger.Credit, Amount: net, Currency: ev.Currency},
	}
	if ev.Fee.IsPositive() {
		entries = append(entries, ledger.EntryInput{
			AccountCode: ledger.PlatformRevenueAccountCode, Direction: ledger.Credit, Amount: ev.Fee, Currency: ev.Currency,
		})
	}
	return entries, nil
}

// refundEntries returns the refunded amount from the merchant's balance back
// out of escrow. Fees are not returned on refund.
func refundEntries(ev Event) ([]ledger.EntryInput, error) {
	if err := requireMerchantAmount(ev); err != nil {
		return nil, err
	}
	return []ledger.EntryInput{
		{AccountCode: ev.MerchantAccount, Direction: ledger.Debit, Amount: ev.Amount, Currency: ev.Currency},
		{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Credit, Amount: ev.Amount, Currency: ev.Currency},
	}, nil
}

// chargebackEntries claws the disputed amount back from the merchant and
// books the dispute fee as platform revenue.
func chargebackEntries(ev Event) ([]ledger.EntryInput, error) {
	if err := requireMerchantAmount(ev); err != nil {
		return nil, err
	}
	entries := []ledger.EntryInput{
		{AccountCode: ev.MerchantAccount, Direction: ledger.Debit, Amount: ev.Amount.Add(ev.Fee), Currency: ev.Currency},
		{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Credit, Amount: ev.Amount, Currency: ev.Currency},
	}
	if ev.Fee.IsPositive() {
		entries = append(entries, ledger.EntryInput{
			AccountCode: ledger.PlatformRevenueAccountCode, Direction: ledger.Credit, Amount: ev.Fee, Currency: ev.Currency,
		})
	}
	return entries, nil
}

func requireMerchantAmount(ev Event) error {
	if ev.MerchantAccount == "" {
		return ErrMissingMerchant
	}
	if !ev.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ledger.ErrValidation)
	}
	if ev.Fee.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", ledger.ErrValidation)
	}
	return nil
}
