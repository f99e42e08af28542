package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository keeps batches and items in memory. Used by tests and by
// deployments running without Postgres.
type MemoryRepository struct {
	mu      sync.RWMutex
	batches map[string]Batch
	items   map[string]Item
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches: make(map[string]Batch),
		items:   make(map[string]Item),
	}
}

func (r *MemoryRepository) CreateBatch(_ context.Context, b Batch) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = b
	return b, nil
}

func (r *MemoryRepository) GetBatch(_ context.Context, id string) (Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	return b, nil
}

func (r *MemoryRepository) CompleteBatch(_ context.Context, b Batch, items []Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prior, ok := r.batches[b.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, b.ID)
	}
	if prior.Status != BatchOpen {
		return ErrBatchCompleted
	}
	r.batches[b.ID] = b
	for _, it := range items {
		r.items[it.ID] = it
	}
	return nil
}

func (r *MemoryRepository) GetItem(_ context.Context, id string) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, nil
}

func (r *MemoryRepository) UpdateItem(_ context.Context, it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[it.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, it.ID)
	}
	r.items[it.ID] = it
	return nil
}

func (r *MemoryRepository) ListItems(_ context.Context, batchID string) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Item
	for _, it := range r.items {
		if it.BatchID == batchID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
