package repository

import (
	"context"
	"time"

	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// Repository defines persistence for WhatsApp instance records.
type Repository interface {
	// GetByID returns the instance for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.Whatsapp, error)
	// List returns every instance ordered by id.
	List(ctx context.Context) ([]*domain.Whatsapp, error)
	// Create inserts w and fills in its generated fields.
	Create(ctx context.Context, w *domain.Whatsapp) error
	// UpdateState writes status, qrcode and retries and returns the updated record (nil if not found).
	UpdateState(ctx context.Context, id int64, st domain.State) (*domain.Whatsapp, error)
	// UpdateSession writes the encoded auth state.
	UpdateSession(ctx context.Context, id int64, blob string) error
	// ResetSession clears the auth state, qrcode and retries and sets status. Returns the updated record.
	ResetSession(ctx context.Context, id int64, status domain.Status) (*domain.Whatsapp, error)
	// AcquireConnecting moves the instance to CONNECTING unless it is CONNECTED or was moved to
	// CONNECTING less than staleAfter ago. Reports whether the row was claimed.
	AcquireConnecting(ctx context.Context, id int64, staleAfter time.Duration) (bool, error)
	// ReleaseConnecting sets status to next only while the instance is still CONNECTING.
	ReleaseConnecting(ctx context.Context, id int64, next domain.Status) (bool, error)
}
