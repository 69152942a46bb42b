package domain

import (
	"strings"
	"time"
)

// Status is the persisted connection status of a WhatsApp instance.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusConnecting   Status = "CONNECTING"
	StatusQRCode       Status = "qrcode" // lower-case on the wire; frontends read it as-is
	StatusConnected    Status = "CONNECTED"
	StatusDisconnected Status = "DISCONNECTED"
)

// ParseStatus maps a stored status string to a Status. Matching is case-insensitive.
// Returns false for unknown values.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PENDING":
		return StatusPending, true
	case "CONNECTING":
		return StatusConnecting, true
	case "QRCODE":
		return StatusQRCode, true
	case "CONNECTED":
		return StatusConnected, true
	case "DISCONNECTED":
		return StatusDisconnected, true
	}
	return "", false
}

func (s Status) String() string { return string(s) }

// Whatsapp is one tenant's persisted WhatsApp instance record.
// Session holds the encoded auth state; empty means the instance was never paired.
type Whatsapp struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CompanyID int64     `json:"companyId"`
	Status    Status    `json:"status"`
	QRCode    string    `json:"qrcode"`
	Retries   int       `json:"retries"`
	Session   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State is the subset of Whatsapp written on every lifecycle transition.
type State struct {
	Status  Status
	QRCode  string
	Retries int
}

// Paired reports whether the instance has persisted credentials.
func (w *Whatsapp) Paired() bool {
	return w != nil && w.Session != ""
}
