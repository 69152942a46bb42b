package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-control-plane/backend/internal/authstate"
	"whatsapp-control-plane/backend/internal/waclient"
)

// Session is one connection attempt of a WhatsApp instance, registered while it is live.
type Session struct {
	TenantID  int64
	CompanyID int64
	AttemptID uuid.UUID

	client waclient.Client
	auth   *authstate.Store
	log    zerolog.Logger

	// qrRetries is owned by the event loop goroutine.
	qrRetries int

	readyOnce sync.Once
	ready     chan struct{}
	doneOnce  sync.Once
	done      chan struct{}
	err       error
}

func newSession(tenantID, companyID int64, qrRetries int, log zerolog.Logger) *Session {
	attempt := uuid.New()
	return &Session{
		TenantID:  tenantID,
		CompanyID: companyID,
		AttemptID: attempt,
		log:       log.With().Str("attempt_id", attempt.String()).Logger(),
		qrRetries: qrRetries,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Client returns the protocol client of the session.
func (s *Session) Client() waclient.Client { return s.client }

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session ended, or nil while it is live.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the session reaches CONNECTED (nil), ends first (the reason), or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		select {
		case <-s.ready:
			return nil
		default:
			return s.err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}
