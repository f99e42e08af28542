package override

import (
	"context"
	"sync"
)

// MemoryRepository is a concurrency-safe in-memory override log for tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryRepository creates an in-memory override repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Append stores an override record.
func (r *MemoryRepository) Append(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// ListByEntity returns override records for an entity, oldest first.
func (r *MemoryRepository) ListByEntity(_ context.Context, entityRef string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if rec.EntityRef == entityRef {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every record, oldest first. Test helper.
func (r *MemoryRepository) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
