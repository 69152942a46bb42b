package repository

import (
	"context"
	"sync"
)

// MemoryRepository keeps cache entries keyed by instance id.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[int64]map[string]string
	purges  map[int64]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[int64]map[string]string),
		purges:  make(map[int64]int),
	}
}

// Put stores one cache entry.
func (r *MemoryRepository) Put(whatsappID int64, key, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[whatsappID] == nil {
		r.entries[whatsappID] = make(map[string]string)
	}
	r.entries[whatsappID][key] = payload
}

func (r *MemoryRepository) Purge(ctx context.Context, whatsappID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.entries[whatsappID]))
	delete(r.entries, whatsappID)
	r.purges[whatsappID]++
	return n, nil
}

// Purges returns how many times Purge was called for whatsappID.
func (r *MemoryRepository) Purges(whatsappID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purges[whatsappID]
}

// Len returns the number of cached entries for whatsappID.
func (r *MemoryRepository) Len(whatsappID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[whatsappID])
}
