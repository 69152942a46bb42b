// Package telemetry carries the session lifecycle audit trail and counters.
package telemetry

import (
	"context"
	"time"
)

// Lifecycle event types.
const (
	EventStarting        = "session.starting"
	EventQRIssued        = "session.qr_issued"
	EventQRExhausted     = "session.qr_exhausted"
	EventConnected       = "session.connected"
	EventDisconnected    = "session.disconnected"
	EventAuthInvalidated = "session.auth_invalidated"
	EventLoggedOut       = "session.logged_out"
)

// SessionEvent is one persisted lifecycle transition of a WhatsApp instance.
type SessionEvent struct {
	WhatsappID int64
	CompanyID  int64
	AttemptID  string
	EventType  string
	Status     string
	// Reason is the disconnect reason name for close transitions.
	Reason    string
	Metadata  []byte
	CreatedAt time.Time
}

// EventEmitter emits lifecycle events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *SessionEvent) error
}
