package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veloxpay/velox_ledger/internal/infra"
	"github.com/veloxpay/velox_ledger/internal/ledger"
)

// MemoryRepository is a concurrency-safe in-memory lock store for tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	locks map[string]Lock
}

// NewMemoryRepository creates an in-memory lock repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{locks: make(map[string]Lock)}
}

// Create inserts an active lock, rejecting same-type overlap.
func (r *MemoryRepository) Create(_ context.Context, l Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.locks {
		if existing.Tenant != l.Tenant || existing.Type != l.Type || existing.Status != StatusActive {
			continue
		}
		if !l.Start.After(existing.End) && !l.End.Before(existing.Start) {
			return fmt.Errorf("%w: %s %s", ErrLockOverlap, l.Type, l.Tenant)
		}
	}
	r.locks[l.ID] = l
	return nil
}

// Get fetches a lock by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Lock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locks[id]
	if !ok {
		return Lock{}, fmt.Errorf("%w: %s", ErrLockNotFound, id)
	}
	return l, nil
}

// Update persists release metadata.
func (r *MemoryRepository) Update(_ context.Context, l Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[l.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrLockNotFound, l.ID)
	}
	r.locks[l.ID] = l
	return nil
}

// ActiveCovering returns active locks for the tenant covering the date.
func (r *MemoryRepository) ActiveCovering(_ context.Context, tenant string, date time.Time) ([]Lock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Lock
	for _, l := range r.locks {
		if l.Tenant == tenant && l.Status == StatusActive && l.Covers(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

// CheckPosting implements ledger.PostingGate.
func (r *MemoryRepository) CheckPosting(ctx context.Context, _ infra.Querier, tenant string, date time.Time) error {
	locks, err := r.ActiveCovering(ctx, tenant, date)
	if err != nil {
		return err
	}
	if len(locks) > 0 {
		return fmt.Errorf("%w: %s (%s)", ledger.ErrLockActive, locks[0].Type, locks[0].Reason)
	}
	return nil
}
