package session

import "errors"

var (
	// ErrTenantNotFound is returned when no WhatsApp record exists for the id.
	ErrTenantNotFound = errors.New("session: whatsapp instance not found")
	// ErrNotInitialized is returned when the instance has no live connection in this process.
	ErrNotInitialized = errors.New("session: whatsapp instance not initialized")
	// ErrQRExhausted ends a session whose pairing code was not scanned within the retry cap.
	ErrQRExhausted = errors.New("session: pairing code retries exhausted")
	// ErrAuthInvalidated ends a session whose credentials were rejected by the backend.
	ErrAuthInvalidated = errors.New("session: credentials invalidated")
	// ErrSessionClosed ends a session that was stopped or logged out locally.
	ErrSessionClosed = errors.New("session: closed")
	// ErrControllerClosed is returned by Start after Shutdown.
	ErrControllerClosed = errors.New("session: controller shut down")
)
