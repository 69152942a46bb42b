// Package registry is the process-wide table of live connection handles keyed by instance id.
package registry

import (
	"sort"
	"sync"
)

// Registry maps instance ids to handles. Safe for concurrent use.
type Registry[H comparable] struct {
	mu sync.RWMutex
	m  map[int64]H
}

// New returns an empty registry.
func New[H comparable]() *Registry[H] {
	return &Registry[H]{m: make(map[int64]H)}
}

// Add registers h for id. It returns false and leaves the table unchanged if id is already registered.
func (r *Registry[H]) Add(id int64, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; ok {
		return false
	}
	r.m[id] = h
	return true
}

// Find returns the handle registered for id.
func (r *Registry[H]) Find(id int64) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[id]
	return h, ok
}

// Is reports whether h is the handle currently registered for id.
func (r *Registry[H]) Is(id int64, h H) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.m[id]
	return ok && cur == h
}

// Remove deregisters id and returns the handle that was registered.
func (r *Registry[H]) Remove(id int64) (H, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.m[id]
	if ok {
		delete(r.m, id)
	}
	return h, ok
}

// RemoveIf deregisters id only if h is the registered handle.
func (r *Registry[H]) RemoveIf(id int64, h H) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[id]; ok && cur == h {
		delete(r.m, id)
		return true
	}
	return false
}

// IDs returns the registered ids in ascending order.
func (r *Registry[H]) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.m))
	for id := range r.m {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
