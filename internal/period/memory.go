package period

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veloxpay/velox_ledger/internal/infra"
)

// MemoryRepository is a concurrency-safe in-memory period store for tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	periods map[string]Period
}

// NewMemoryRepository creates an in-memory period repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{periods: make(map[string]Period)}
}

// Create inserts an OPEN period, rejecting overlap and second-OPEN
// violations.
func (r *MemoryRepository) Create(_ context.Context, p Period) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.periods {
		if existing.Tenant != p.Tenant || existing.Type != p.Type {
			continue
		}
		if !p.Start.After(existing.End) && !p.End.Before(existing.Start) {
			return fmt.Errorf("%w: %s %s", ErrPeriodOverlap, p.Type, p.Tenant)
		}
		if existing.Status == StatusOpen {
			return fmt.Errorf("%w: %s %s", ErrOpenPeriodExists, p.Type, p.Tenant)
		}
	}
	r.periods[p.ID] = p
	return nil
}

// Get fetches a period by id.
func (r *MemoryRepository) Get(_ context.Context, id string) (Period, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.periods[id]
	if !ok {
		return Period{}, fmt.Errorf("%w: %s", ErrPeriodNotFound, id)
	}
	return p, nil
}

// Update persists lifecycle changes.
func (r *MemoryRepository) Update(_ context.Context, p Period) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.periods[p.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrPeriodNotFound, p.ID)
	}
	r.periods[p.ID] = p
	return nil
}

// Covering returns all periods for the tenant including the date.
func (r *MemoryRepository) Covering(_ context.Context, tenant string, date time.Time) ([]Period, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Period
	for _, p := range r.periods {
		if p.Tenant == tenant && p.Covers(date) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CheckPosting implements ledger.PostingGate.
func (r *MemoryRepository) CheckPosting(ctx context.Context, _ infra.Querier, tenant string, date time.Time) error {
	periods, err := r.Covering(ctx, tenant, date)
	if err != nil {
		return err
	}
	return gateDecision(periods, tenant, date)
}
