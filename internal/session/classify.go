package session

import "whatsapp-control-plane/backend/internal/waclient"

// DisconnectKind is the recovery class of a connection close.
type DisconnectKind int

const (
	// Transient closes keep the credentials and retry.
	Transient DisconnectKind = iota
	// AuthInvalidated closes discard the credentials; the instance must pair again.
	AuthInvalidated
)

func (k DisconnectKind) String() string {
	if k == AuthInvalidated {
		return "auth_invalidated"
	}
	return "transient"
}

// Classify maps a close reason to its recovery class. Only logged-out (401) and forbidden (403)
// invalidate credentials; every other or missing reason is Transient.
func Classify(err *waclient.DisconnectError) DisconnectKind {
	switch err.Reason() {
	case waclient.ReasonLoggedOut, waclient.ReasonForbidden:
		return AuthInvalidated
	}
	return Transient
}
