// Package repository persists protocol-internal side data (contacts, chats, message retry state)
// cached per WhatsApp instance by the protocol client.
package repository

import "context"

// Repository purges cached protocol data for an instance whose credentials were invalidated.
type Repository interface {
	// Purge deletes every cached entry for whatsappID and returns how many were removed.
	Purge(ctx context.Context, whatsappID int64) (int64, error)
}
