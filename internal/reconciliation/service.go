package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/ledger"
)

// Repository persists reconciliation batches and items.
type Repository interface {
	CreateBatch(ctx context.Context, b Batch) (Batch, error)
	GetBatch(ctx context.Context, id string) (Batch, error)
	// CompleteBatch marks the batch completed and stores its items.
	CompleteBatch(ctx context.Context, b Batch, items []Item) error
	GetItem(ctx context.Context, id string) (Item, error)
	UpdateItem(ctx context.Context, it Item) error
	ListItems(ctx context.Context, batchID string) ([]Item, error)
}

// LedgerReader is the read-only slice of the ledger the matcher needs.
// *ledger.Service satisfies it.
type LedgerReader interface {
	GetTransactionByReference(ctx context.Context, reference string) (ledger.Transaction, error)
	ListPostedReferences(ctx context.Context, tenant string, from, to time.Time) ([]string, error)
}

// Service matches external statements against posted ledger transactions
// and tracks the manual resolution of discrepancies.
type Service struct {
	repo   Repository
	reader LedgerReader
	audit  audit.Recorder
	logger *slog.Logger
}

func NewService(repo Repository, reader LedgerReader, rec audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, reader: reader, audit: rec, logger: logger}
}

// CreateBatchInput describes a statement window to reconcile.
type CreateBatchInput struct {
	Tenant      string
	Type        BatchType
	PeriodLabel string
	Source      string
	Start       time.Time
	End         time.Time
	Actor       string
}

// CreateBatch opens a reconciliation batch for one statement window.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (Batch, error) {
	switch in.Type {
	case BatchGatewaySettlement, BatchBankStatement, BatchEscrowStatement:
	default:
		return Batch{}, fmt.Errorf("unknown batch type %q", in.Type)
	}
	if !in.End.After(in.Start) {
		return Batch{}, fmt.Errorf("batch window end must be after start")
	}
	b := Batch{
		ID:          uuid.NewString(),
		Tenant:      in.Tenant,
		Type:        in.Type,
		PeriodLabel: in.PeriodLabel,
		Source:      in.Source,
		Start:       in.Start,
		End:         in.End,
		Status:      BatchOpen,
		CreatedBy:   in.Actor,
		CreatedAt:   time.Now().UTC(),
	}
	return s.repo.CreateBatch(ctx, b)
}

// Reconcile matches the statement lines against posted transactions and
// persists one item per line plus one per unmatched internal posting in the
// batch window. Matching is by external reference first, then amount.
func (s *Service) Reconcile(ctx context.Context, batchID string, records []ExternalRecord) (Summary, []Item, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Summary{}, nil, err
	}
	if batch.Status != BatchOpen {
		return Summary{}, nil, ErrBatchCompleted
	}

	now := time.Now().UTC()
	var items []Item
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		it := Item{
			ID:               uuid.NewString(),
			BatchID:          batch.ID,
			ExternalRef:      rec.Reference,
			ExternalAmount:   rec.Amount,
			Currency:         rec.Currency,
			ResolutionStatus: Unresolved,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		switch {
		case seen[rec.Reference]:
			it.MatchStatus = Duplicate
		default:
			seen[rec.Reference] = true
			txn, err := s.reader.GetTransactionByReference(ctx, rec.Reference)
			switch {
			case errors.Is(err, ledger.ErrTransactionNotFound):
				it.MatchStatus = MissingInternal
			case err != nil:
				return Summary{}, nil, err
			default:
				it.InternalRef = txn.Reference
				it.InternalAmount = txn.TotalDebits()
				if it.InternalAmount.Equal(rec.Amount) {
					it.MatchStatus = Matched
					it.ResolutionStatus = Resolved
				} else {
					it.MatchStatus = AmountMismatch
				}
			}
		}
		items = append(items, it)
	}

	// Internal postings the statement never mentioned.
	refs, err := s.reader.ListPostedReferences(ctx, batch.Tenant, batch.Start, batch.End)
	if err != nil {
		return Summary{}, nil, err
	}
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		txn, err := s.reader.GetTransactionByReference(ctx, ref)
		if err != nil {
			return Summary{}, nil, err
		}
		items = append(items, Item{
			ID:               uuid.NewString(),
			BatchID:          batch.ID,
			InternalRef:      ref,
			InternalAmount:   txn.TotalDebits(),
			ExternalAmount:   decimal.Zero,
			MatchStatus:      MissingExternal,
			ResolutionStatus: Unresolved,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	var sum Summary
	for _, it := range items {
		switch it.MatchStatus {
		case Matched:
			sum.Matched++
		case MissingInternal:
			sum.MissingInternal++
		case MissingExternal:
			sum.MissingExternal++
		case AmountMismatch:
			sum.AmountMismatch++
		case Duplicate:
			sum.Duplicate++
		}
	}

	batch.Status = BatchCompleted
	batch.CompletedAt = now
	if err := s.repo.CompleteBatch(ctx, batch, items); err != nil {
		return Summary{}, nil, err
	}

	s.logger.Info("reconciliation batch completed",
		"batch_id", batch.ID,
		"matched", sum.Matched,
		"missing_internal", sum.MissingInternal,
		"missing_external", sum.MissingExternal,
		"amount_mismatch", sum.AmountMismatch,
		"duplicate", sum.Duplicate,
	)
	return sum, items, nil
}

// GetBatch fetches a batch by id.
func (s *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListItems returns all items of a batch.
func (s *Service) ListItems(ctx context.Context, batchID string) ([]Item, error) {
	return s.repo.ListItems(ctx, batchID)
}

// ResolveItem advances an item's resolution. It records who resolved it and
// why; correcting the books themselves is always a separate adjustment
// posting, never an edit here.
func (s *Service) ResolveItem(ctx context.Context, itemID string, status ResolutionStatus, notes, actor string) (Item, error) {
	switch status {
	case Investigating, Resolved, WrittenOff:
	default:
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidResolution, status)
	}
	it, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	it.ResolutionStatus = status
	it.Notes = notes
	it.ResolvedBy = actor
	it.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateItem(ctx, it); err != nil {
		return Item{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, audit.Event{
			Action:   audit.ActionReconItemResolved,
			Entity:   "reconciliation_item",
			EntityID: it.ID,
			Actor:    actor,
			Detail: map[string]string{
				"status": string(status),
				"batch":  it.BatchID,
			},
			At: it.UpdatedAt,
		})
	}
	return it, nil
}
