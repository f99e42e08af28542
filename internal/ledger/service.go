package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
)

// OverrideRecorder persists an admin override before a gated posting is
// allowed to proceed. It returns an error when the override is denied; the
// denial itself is recorded by the implementation.
type OverrideRecorder interface {
	RecordPostingOverride(ctx context.Context, justification, entityRef, actor, role string) error
}

// Service exposes the double-entry ledger core.
type Service struct {
	repo      Repository
	overrides OverrideRecorder
	audit     audit.Recorder
	tolerance decimal.Decimal
	logger    *slog.Logger
}

// NewService builds the ledger core. tolerance is the maximum allowed
// |debits - credits| per transaction.
func NewService(repo Repository, overrides OverrideRecorder, recorder audit.Recorder, tolerance decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{repo: repo, overrides: overrides, audit: recorder, tolerance: tolerance, logger: logger}
}

// EntryInput is one leg of a posting request.
type EntryInput struct {
	AccountCode string
	Direction   Direction
	Amount      decimal.Decimal
	Currency    string
}

// Override carries a pre-validated actor/role claim justifying a posting
// into a soft-closed period. Role verification happened upstream.
type Override struct {
	Justification string
	Actor         string
	Role          string
}

// PostInput captures a posting request. Reference is the externally visible
// identifier, usually carried over from the upstream system so statements
// can be reconciled against it; left empty, one is generated.
type PostInput struct {
	Tenant         string
	Reference      string
	EventType      string
	IdempotencyKey string
	EffectiveDate  time.Time
	Entries        []EntryInput
	Override       *Override
}

// Post validates and atomically writes a balanced transaction.
//
// When the idempotency key was used before with an identical payload the
// prior transaction is returned unchanged; a different payload under the
// same key fails with ErrIdempotencyConflict.
func (s *Service) Post(ctx context.Context, input PostInput) (Transaction, error) {
	if err := validatePostInput(input); err != nil {
		return Transaction{}, err
	}

	debits, credits := sumEntries(input.Entries)
	if debits.Sub(credits).Abs().GreaterThan(s.tolerance) {
		return Transaction{}, fmt.Errorf("%w: debits %s, credits %s", ErrUnbalancedTransaction, debits, credits)
	}

	effective := input.EffectiveDate
	if effective.IsZero() {
		effective = time.Now().UTC()
	}

	reference := input.Reference
	if reference == "" {
		reference = "txn-" + uuid.NewString()
	}

	txn := Transaction{
		ID:             uuid.NewString(),
		Reference:      reference,
		Tenant:         input.Tenant,
		IdempotencyKey: input.IdempotencyKey,
		EventType:      input.EventType,
		Status:         StatusPosted,
		EffectiveDate:  effective,
		PayloadHash:    payloadHash(input),
		CreatedAt:      time.Now().UTC(),
	}
	for _, e := range input.Entries {
		txn.Entries = append(txn.Entries, Entry{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			AccountCode:   e.AccountCode,
			Direction:     e.Direction,
			Amount:        e.Amount,
			Currency:      e.Currency,
		})
	}

	allowSoftClosed, err := s.recordOverride(ctx, input.Override, txn.Reference)
	if err != nil {
		return Transaction{}, err
	}

	posted, replayed, err := s.repo.Post(ctx, PostRequest{Transaction: txn, AllowSoftClosed: allowSoftClosed})
	if err != nil {
		return Transaction{}, err
	}
	if replayed {
		s.logger.Info("idempotent posting replayed", "reference", posted.Reference, "idempotency_key", input.IdempotencyKey)
		return posted, nil
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionTransactionPosted,
		Entity:   "transaction",
		EntityID: posted.Reference,
		Actor:    actorOf(input.Override),
		Detail: map[string]string{
			"event_type": posted.EventType,
			"tenant":     posted.Tenant,
			"debits":     debits.String(),
		},
	})

	return posted, nil
}

// ReverseInput captures a reversal request.
type ReverseInput struct {
	TransactionID string
	Reason        string
	Actor         string
	Override      *Override
}

// Reverse creates a new transaction mirroring the original with directions
// flipped, linked both ways. Reversals pass the same period and lock gates
// as any posting, dated now.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (Transaction, error) {
	if input.TransactionID == "" {
		return Transaction{}, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if input.Reason == "" {
		return Transaction{}, fmt.Errorf("%w: reversal reason is required", ErrValidation)
	}

	allowSoftClosed, err := s.recordOverride(ctx, input.Override, input.TransactionID)
	if err != nil {
		return Transaction{}, err
	}

	reversal, err := s.repo.Reverse(ctx, ReverseRequest{
		TransactionID:   input.TransactionID,
		Reason:          input.Reason,
		Actor:           input.Actor,
		EffectiveDate:   time.Now().UTC(),
		AllowSoftClosed: allowSoftClosed,
	})
	if err != nil {
		return Transaction{}, err
	}

	_ = s.audit.Record(ctx, audit.Event{
		Action:   audit.ActionTransactionReversed,
		Entity:   "transaction",
		EntityID: reversal.Reference,
		Actor:    input.Actor,
		Detail: map[string]string{
			"reverses": input.TransactionID,
			"reason":   input.Reason,
		},
	})

	return reversal, nil
}

// Balance derives the account position by folding over its posted entries.
func (s *Service) Balance(ctx context.Context, accountCode string) (Balance, error) {
	amount, err := s.repo.Balance(ctx, accountCode)
	if err != nil {
		return Balance{}, err
	}
	return Balance{AccountCode: accountCode, Amount: amount, AsOf: time.Now().UTC()}, nil
}

// TrialBalance reports the derived position of every account with postings
// for the tenant.
func (s *Service) TrialBalance(ctx context.Context, tenant string) ([]AccountBalance, error) {
	return s.repo.TrialBalance(ctx, tenant)
}

// GetTransaction fetches a transaction with its entries by id.
func (s *Service) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// GetTransactionByReference fetches a transaction with its entries by its
// unique reference.
func (s *Service) GetTransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	return s.repo.GetTransactionByReference(ctx, reference)
}

// ListPostedReferences returns references of posted transactions for the
// tenant whose effective date falls inside [from, to].
func (s *Service) ListPostedReferences(ctx context.Context, tenant string, from, to time.Time) ([]string, error) {
	return s.repo.ListPostedReferences(ctx, tenant, from, to)
}

// CreateAccount registers a chart-of-accounts entry. Provisioning is
// idempotent; an existing code is left untouched.
func (s *Service) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if account.Code == "" {
		return Account{}, fmt.Errorf("%w: account code is required", ErrValidation)
	}
	if account.NormalBalance != Debit && account.NormalBalance != Credit {
		return Account{}, fmt.Errorf("%w: unknown normal balance %q", ErrValidation, account.NormalBalance)
	}
	switch account.Category {
	case CategoryAsset, CategoryLiability, CategoryRevenue, CategoryExpense, CategoryEquity:
	default:
		return Account{}, fmt.Errorf("%w: unknown category %q", ErrValidation, account.Category)
	}
	if account.Status == "" {
		account.Status = AccountActive
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// GetAccount fetches chart-of-accounts metadata.
func (s *Service) GetAccount(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccount(ctx, code)
}

func (s *Service) recordOverride(ctx context.Context, o *Override, entityRef string) (bool, error) {
	if o == nil {
		return false, nil
	}
	if s.overrides == nil {
		return false, fmt.Errorf("%w: override log not configured", ErrValidation)
	}
	// The override attempt is persisted, granted or denied, before the
	// gated posting executes.
	if err := s.overrides.RecordPostingOverride(ctx, o.Justification, entityRef, o.Actor, o.Role); err != nil {
		return false, err
	}
	return true, nil
}

func validatePostInput(input PostInput) error {
	if input.Tenant == "" {
		return fmt.Errorf("%w: tenant is required", ErrValidation)
	}
	if input.EventType == "" {
		return fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if len(input.Entries) == 0 {
		return fmt.Errorf("%w: at least one entry is required", ErrValidation)
	}
	for i, e := range input.Entries {
		if e.AccountCode == "" {
			return fmt.Errorf("%w: entry %d missing account code", ErrValidation, i)
		}
		if e.Direction != Debit && e.Direction != Credit {
			return fmt.Errorf("%w: entry %d has invalid direction %q", ErrValidation, i, e.Direction)
		}
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: entry %d amount must be positive", ErrValidation, i)
		}
		if e.Currency == "" {
			return fmt.Errorf("%w: entry %d missing currency", ErrValidation, i)
		}
	}
	return nil
}

func sumEntries(entries []EntryInput) (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Direction == Debit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

// payloadHash is the identity of a posting under an idempotency key: the
// canonical entry set plus event type, tenant and the effective date as the
// caller supplied it. The defaulted posting date stays out of the hash, so a
// redelivered request without an effective date replays instead of
// conflicting with itself.
func payloadHash(input PostInput) string {
	lines := make([]string, 0, len(input.Entries))
	for _, e := range input.Entries {
		lines = append(lines, strings.Join([]string{e.AccountCode, string(e.Direction), e.Amount.String(), e.Currency}, "|"))
	}
	sort.Strings(lines)
	lines = append(lines, input.Tenant, input.EventType, input.EffectiveDate.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func actorOf(o *Override) string {
	if o == nil {
		return "system"
	}
	return o.Actor
}
