// Package waclient defines the contract of the external WhatsApp protocol client that the session
// controller drives. The client owns the socket, QR generation and wire framing; this package only
// describes how it is constructed, what it emits and how it is torn down.
package waclient

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-control-plane/backend/internal/authstate"
)

// Phase is the connection phase reported by a ConnectionUpdate.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClose      Phase = "close"
)

// Event is emitted by a Client. Concrete types: ConnectionUpdate, CredsUpdate.
type Event interface {
	isEvent()
}

// ConnectionUpdate reports a phase change, a pairing code, or both.
// LastDisconnect is set only when Phase is PhaseClose.
type ConnectionUpdate struct {
	Phase          Phase
	QR             string
	LastDisconnect *DisconnectError
}

// CredsUpdate signals that the credentials were mutated and should be persisted.
type CredsUpdate struct{}

func (ConnectionUpdate) isEvent() {}
func (CredsUpdate) isEvent()      {}

// Version is a protocol version triple.
type Version [3]int

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// DefaultVersion is used when the latest version cannot be fetched.
var DefaultVersion = Version{2, 3000, 1023223821}

// IgnoreFunc reports whether traffic for a JID should be ignored by the client.
type IgnoreFunc func(jid string) bool

// IsBroadcastJID matches status and broadcast list JIDs.
func IsBroadcastJID(jid string) bool {
	return strings.HasSuffix(jid, "@broadcast")
}

// Options configure a new Client.
type Options struct {
	TenantID int64
	Auth     *authstate.Store
	Version  Version
	// ShouldIgnoreJID defaults to IsBroadcastJID when nil.
	ShouldIgnoreJID IgnoreFunc
}

// Client is one live protocol connection.
//
// Events is closed after the connection has emitted its final close update or after Close.
// Events are delivered in emission order.
type Client interface {
	Events() <-chan Event
	// Logout unlinks the device remotely.
	Logout(ctx context.Context) error
	// Close severs the transport without logging out.
	Close() error
}

// Factory constructs clients and answers version queries.
type Factory interface {
	FetchLatestVersion(ctx context.Context) (Version, error)
	// InitAuthCreds returns credentials for a never-paired instance.
	InitAuthCreds() (authstate.Creds, error)
	NewClient(ctx context.Context, opts Options) (Client, error)
}
