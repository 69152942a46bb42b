package waclient

import "fmt"

// DisconnectReason is the status code carried by a close update.
type DisconnectReason int

const (
	ReasonLoggedOut       DisconnectReason = 401
	ReasonForbidden       DisconnectReason = 403
	ReasonConnectionLost  DisconnectReason = 408
	ReasonConnectionClose DisconnectReason = 428
	ReasonReplaced        DisconnectReason = 440
	ReasonBadSession      DisconnectReason = 500
	ReasonUnavailable     DisconnectReason = 503
	ReasonRestartRequired DisconnectReason = 515
)

var reasonNames = map[DisconnectReason]string{
	ReasonLoggedOut:       "logged_out",
	ReasonForbidden:       "forbidden",
	ReasonConnectionLost:  "connection_lost",
	ReasonConnectionClose: "connection_closed",
	ReasonReplaced:        "connection_replaced",
	ReasonBadSession:      "bad_session",
	ReasonUnavailable:     "unavailable_service",
	ReasonRestartRequired: "restart_required",
}

func (r DisconnectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("unknown_%d", int(r))
}

// DisconnectError describes why a connection closed.
type DisconnectError struct {
	StatusCode DisconnectReason
	Message    string
}

func (e *DisconnectError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("waclient: connection closed (%d %s)", int(e.StatusCode), e.StatusCode)
	}
	return fmt.Sprintf("waclient: connection closed (%d %s): %s", int(e.StatusCode), e.StatusCode, e.Message)
}

// Reason returns the status code of e, or 0 when e is nil.
func (e *DisconnectError) Reason() DisconnectReason {
	if e == nil {
		return 0
	}
	return e.StatusCode
}
