package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// MemoryRepository is an in-memory Repository. Used when DATABASE_URL is unset and in tests.
type MemoryRepository struct {
	mu     sync.Mutex
	m      map[int64]*domain.Whatsapp
	nextID int64
	nowF   func() time.Time
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		m:    make(map[int64]*domain.Whatsapp),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the clock used for updated_at and lease staleness.
func (r *MemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowF = now
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*domain.Whatsapp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// GetByName returns the instance named name within companyID, or nil if not found.
func (r *MemoryRepository) GetByName(ctx context.Context, companyID int64, name string) (*domain.Whatsapp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.m {
		if w.CompanyID == companyID && w.Name == name {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Whatsapp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Whatsapp, 0, len(r.m))
	for _, w := range r.m {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Create stores a copy of w. A zero ID is assigned the next sequence value.
func (r *MemoryRepository) Create(ctx context.Context, w *domain.Whatsapp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == 0 {
		r.nextID++
		w.ID = r.nextID
	} else if w.ID > r.nextID {
		r.nextID = w.ID
	}
	if w.Status == "" {
		w.Status = domain.StatusPending
	}
	now := r.nowF()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	cp := *w
	r.m[w.ID] = &cp
	return nil
}

func (r *MemoryRepository) UpdateState(ctx context.Context, id int64, st domain.State) (*domain.Whatsapp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	w.Status = st.Status
	w.QRCode = st.QRCode
	w.Retries = st.Retries
	w.UpdatedAt = r.nowF()
	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) UpdateSession(ctx context.Context, id int64, blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.m[id]; ok {
		w.Session = blob
		w.UpdatedAt = r.nowF()
	}
	return nil
}

func (r *MemoryRepository) ResetSession(ctx context.Context, id int64, status domain.Status) (*domain.Whatsapp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	w.Session = ""
	w.QRCode = ""
	w.Retries = 0
	w.Status = status
	w.UpdatedAt = r.nowF()
	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) AcquireConnecting(ctx context.Context, id int64, staleAfter time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.m[id]
	if !ok {
		return false, nil
	}
	now := r.nowF()
	switch {
	case w.Status == domain.StatusConnected:
		return false, nil
	case w.Status == domain.StatusConnecting && now.Sub(w.UpdatedAt) < staleAfter:
		return false, nil
	}
	w.Status = domain.StatusConnecting
	w.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) ReleaseConnecting(ctx context.Context, id int64, next domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.m[id]
	if !ok || w.Status != domain.StatusConnecting {
		return false, nil
	}
	w.Status = next
	w.UpdatedAt = r.nowF()
	return true, nil
}
