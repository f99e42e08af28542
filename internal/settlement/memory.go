package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is a concurrency-safe in-memory settlement store for
// tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	settlements map[string]Settlement
}

// NewMemoryRepository creates an in-memory settlement repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{settlements: make(map[string]Settlement)}
}

// Create inserts a settlement in its initial state.
func (r *MemoryRepository) Create(_ context.Context, s Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements[s.ID] = s
	return nil
}

// Get fetches a settlement with its transition history.
func (r *MemoryRepository) Get(_ context.Context, id string) (Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settlements[id]
	if !ok {
		return Settlement{}, fmt.Errorf("%w: %s", ErrSettlementNotFound, id)
	}
	return s, nil
}

// Update persists the settlement; the transition is already appended to its
// history by the service.
func (r *MemoryRepository) Update(_ context.Context, s Settlement, _ Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.settlements[s.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrSettlementNotFound, s.ID)
	}
	r.settlements[s.ID] = s
	return nil
}

// DueForRetry returns settlements in RETRIED with an elapsed schedule.
func (r *MemoryRepository) DueForRetry(_ context.Context, now time.Time, limit int) ([]Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []Settlement
	for _, s := range r.settlements {
		if s.State == StateRetried && !s.NextRetryAt.IsZero() && !s.NextRetryAt.After(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ClearSchedule zeroes next_retry_at after dispatch.
func (r *MemoryRepository) ClearSchedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSettlementNotFound, id)
	}
	s.NextRetryAt = time.Time{}
	r.settlements[id] = s
	return nil
}
