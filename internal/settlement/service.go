package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/ledger"
)

// Repository persists settlements and their transition history. Update and
// the transition append happen atomically.
type Repository interface {
	Create(ctx context.Context, s Settlement) error
	Get(ctx context.Context, id string) (Settlement, error)
	Update(ctx context.Context, s Settlement, tr Transition) error

	// DueForRetry returns settlements in RETRIED whose next_retry_at has
	// elapsed, oldest first.
	DueForRetry(ctx context.Context, now time.Time, limit int) ([]Settlement, error)

	// ClearSchedule zeroes next_retry_at after the settlement has been
	// handed to the work queue, so the scheduler does not enqueue it twice.
	ClearSchedule(ctx context.Context, id string) error
}

// LedgerPoster is the slice of the ledger core the settlement flow posts
// through.
type LedgerPoster interface {
	Post(ctx context.Context, input ledger.PostInput) (ledger.Transaction, error)
}

// RetryPolicy bounds the settlement retry loop.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// Delay computes the capped exponential backoff for the given attempt with
// full jitter: a random duration in [0, min(maxDelay, base*multiplier^n)).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if capped := float64(p.MaxDelay); p.MaxDelay > 0 && d > capped {
		d = capped
	}
	n := int64(d)
	if n <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(n))
}

// Service drives the settlement state machine. Creation reserves no funds;
// the reservation posting happens on the CREATED -> FUNDS_RESERVED edge,
// and bank confirmation posts the payable-to-paid recognition.
type Service struct {
	repo   Repository
	books  LedgerPoster
	audit  audit.Recorder
	policy RetryPolicy
	logger *slog.Logger
}

// NewService builds the settlement service.
func NewService(repo Repository, books LedgerPoster, recorder audit.Recorder, policy RetryPolicy, logger *slog.Logger) *Service {
	return &Service{repo: repo, books: books, audit: recorder, policy: policy, logger: logger}
}

// CreateInput captures a new settlement.
type CreateInput struct {
	Tenant          string
	MerchantAccount string
	Amount          decimal.Decimal
	Currency        string
}

// Create registers a settlement in CREATED.
func (s *Service) Create(ctx context.Context, input CreateInput) (Settlement, error) {
	if !input.Amount.IsPositive() {
		return Settlement{}, ErrInvalidAmount
	}
	if input.MerchantAccount == "" {
		return Settlement{}, fmt.Errorf("%w: merchant account is required", ErrInvalidAmount)
	}

	now := time.Now().UTC()
	stl := Settlement{
		ID:              uuid.NewString(),
		Tenant:          input.Tenant,
		MerchantAccount: input.MerchantAccount,
		Amount:          input.Amount,
		Currency:        input.Currency,
		State:           StateCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, stl); err != nil {
		return Settlement{}, err
	}
	return stl, nil
}

// ReserveFunds posts the funds reservation (escrow -> settlement payable)
// and advances CREATED -> FUNDS_RESERVED.
func (s *Service) ReserveFunds(ctx context.Context, id string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	return s.reserve(ctx, stl, StateCreated)
}

// SendToBank advances FUNDS_RESERVED -> SENT_TO_BANK. The bank call itself
// is an external collaborator's concern.
func (s *Service) SendToBank(ctx context.Context, id string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	return s.transition(ctx, stl, StateSentToBank, "dispatched to bank")
}

// ConfirmByBank records the UTR and advances SENT_TO_BANK ->
// BANK_CONFIRMED, the finality boundary. It posts the payable-to-paid
// recognition (settlement payable -> merchant account).
func (s *Service) ConfirmByBank(ctx context.Context, id, bankReference string) (Settlement, error) {
	if bankReference == "" {
		return Settlement{}, ErrMissingBankReference
	}
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	if !CanTransition(stl.State, StateBankConfirmed) {
		return Settlement{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, stl.State, StateBankConfirmed)
	}

	if _, err := s.books.Post(ctx, ledger.PostInput{
		Tenant:         stl.Tenant,
		EventType:      "settlement_recognition",
		IdempotencyKey: fmt.Sprintf("stl:%s:recognize", stl.ID),
		Entries: []ledger.EntryInput{
			{AccountCode: ledger.SettlementPayableAccountCode, Direction: ledger.Debit, Amount: stl.Amount, Currency: stl.Currency},
			{AccountCode: stl.MerchantAccount, Direction: ledger.Credit, Amount: stl.Amount, Currency: stl.Currency},
		},
	}); err != nil {
		return Settlement{}, fmt.Errorf("post recognition: %w", err)
	}

	stl.BankReference = bankReference
	return s.transition(ctx, stl, StateBankConfirmed, "utr "+bankReference)
}

// MarkSettled advances BANK_CONFIRMED -> SETTLED, the terminal success.
func (s *Service) MarkSettled(ctx context.Context, id string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	return s.transition(ctx, stl, StateSettled, "payout complete")
}

// Fail moves any non-terminal settlement to FAILED with a reason.
func (s *Service) Fail(ctx context.Context, id, reason string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	stl.FailureReason = reason
	return s.transition(ctx, stl, StateFailed, reason)
}

// Retry schedules a failed settlement for another attempt. It only computes
// the backoff and records next_retry_at; the scheduler and workers execute
// it later, never the calling path.
func (s *Service) Retry(ctx context.Context, id string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	if stl.State != StateFailed {
		return Settlement{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, stl.State, StateRetried)
	}
	if stl.RetryCount >= s.policy.MaxRetries {
		return Settlement{}, fmt.Errorf("%w: %d attempts", ErrMaxRetriesExceeded, stl.RetryCount)
	}

	delay := s.policy.Delay(stl.RetryCount)
	stl.RetryCount++
	stl.NextRetryAt = time.Now().UTC().Add(delay)
	return s.transition(ctx, stl, StateRetried, fmt.Sprintf("retry %d scheduled in %s", stl.RetryCount, delay.Round(time.Millisecond)))
}

// ExecuteRetry is the worker path: it re-reserves funds for a settlement
// picked off the work queue, advancing RETRIED -> FUNDS_RESERVED.
func (s *Service) ExecuteRetry(ctx context.Context, id string) (Settlement, error) {
	stl, err := s.repo.Get(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	return s.reserve(ctx, stl, StateRetried)
}

// DueForRetry lists settlements whose retry is due. Used by the scheduler.
func (s *Service) DueForRetry(ctx context.Context, now time.Time, limit int) ([]Settlement, error) {
	return s.repo.DueForRetry(ctx, now, limit)
}

// MarkDispatched clears the retry schedule once the settlement is on the
// work queue.
func (s *Service) MarkDispatched(ctx context.Context, id string) error {
	return s.repo.ClearSchedule(ctx, id)
}

// Get fetches a settlement with its transition history.
func (s *Service) Get(ctx context.Context, id string) (Settlement, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) reserve(ctx context.Context, stl Settlement, expected State) (Settlement, error) {
	if stl.State != expected || !CanTransition(stl.State, StateFundsReserved) {
		return Settlement{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, stl.State, StateFundsReserved)
	}

	// The retry count keys each reservation attempt separately while
	// keeping replays of the same attempt idempotent.
	if _, err := s.books.Post(ctx, ledger.PostInput{
		Tenant:         stl.Tenant,
		EventType:      "settlement_reservation",
		IdempotencyKey: fmt.Sprintf("stl:%s:reserve:%d", stl.ID, stl.RetryCount),
		Entries: []ledger.EntryInput{
			{AccountCode: ledger.EscrowAccountCode, Direction: ledger.Debit, Amount: stl.Amount, Currency: stl.Currency},
			{AccountCode: ledger.SettlementPayableAccountCode, Direction: ledger.Credit, Amount: stl.Amount, Currency: stl.Currency},
		},
	}); err != nil {
		return Settlement{}, fmt.Errorf("post reservation: %w", err)
	}

	return s.transition(ctx, stl, StateFundsReserved, "funds reserved")
}

func (s *Service) transition(ctx context.Context, stl Settlement, to State, note string) (Settlement, error) {
	if !CanTransition(stl.State, to) {
		return Settlement{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, stl.State, to)
	}

	tr := Transition{From: stl.State, To: to, Note: note, At: time.Now().UTC()}
	stl.State = to
	stl.UpdatedAt = tr.At
	stl.History = append(stl.History, tr)

	if err := s.repo.Update(ctx, stl, tr); err != nil {
		return Settlement{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionSettlementTransition,
		Entity:   "settlement",
		EntityID: stl.ID,
		Actor:    "system",
		Detail:   map[string]string{"from": string(tr.From), "to": string(tr.To), "note": note},
	})

	return stl, nil
}
