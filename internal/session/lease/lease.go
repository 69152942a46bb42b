// Package lease claims an instance's CONNECTING status as a lightweight, time-bounded lock so that
// at most one connection attempt per instance is in flight.
//
// The claim is a compare-and-set on the status column. It carries no fencing token: a holder that
// crashes while CONNECTING is only superseded once StaleAfter has elapsed.
package lease

import (
	"context"
	"time"

	"whatsapp-control-plane/backend/internal/whatsapp/domain"
)

// DefaultStaleAfter is how long a CONNECTING claim blocks other attempts.
const DefaultStaleAfter = 20 * time.Second

// Store is the persistence needed by Lease.
type Store interface {
	AcquireConnecting(ctx context.Context, id int64, staleAfter time.Duration) (bool, error)
	ReleaseConnecting(ctx context.Context, id int64, next domain.Status) (bool, error)
}

// Lease coordinates connection attempts through the persisted status.
type Lease struct {
	store      Store
	staleAfter time.Duration
}

// New returns a Lease over store. A non-positive staleAfter uses DefaultStaleAfter.
func New(store Store, staleAfter time.Duration) *Lease {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Lease{store: store, staleAfter: staleAfter}
}

// StaleAfter returns the configured staleness window.
func (l *Lease) StaleAfter() time.Duration { return l.staleAfter }

// TryAcquire claims the instance for a new attempt. It refuses while the instance is CONNECTED or
// was claimed less than StaleAfter ago; otherwise the status becomes CONNECTING.
func (l *Lease) TryAcquire(ctx context.Context, id int64) (bool, error) {
	return l.store.AcquireConnecting(ctx, id, l.staleAfter)
}

// Release sets the status to next only if it is still CONNECTING, so a concurrent CONNECTED is
// never overwritten.
func (l *Lease) Release(ctx context.Context, id int64, next domain.Status) error {
	_, err := l.store.ReleaseConnecting(ctx, id, next)
	return err
}
