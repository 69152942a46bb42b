package bridge

import "encoding/json"

// Frame types exchanged with the protocol sidecar.
const (
	frameOpen             = "open"
	frameLogout           = "logout"
	frameKeysResult       = "keys.result"
	frameJIDIgnoreResult  = "jid.ignore.result"
	frameConnectionUpdate = "connection.update"
	frameCredsUpdate      = "creds.update"
	frameKeysGet          = "keys.get"
	frameKeysSet          = "keys.set"
	frameJIDIgnore        = "jid.ignore"
	frameAck              = "ack"
)

// inbound is the union of every sidecar->server frame.
type inbound struct {
	Type           string                                `json:"type"`
	ID             string                                `json:"id,omitempty"`
	Connection     string                                `json:"connection,omitempty"`
	QR             string                                `json:"qr,omitempty"`
	LastDisconnect *lastDisconnect                       `json:"lastDisconnect,omitempty"`
	Creds          json.RawMessage                       `json:"creds,omitempty"`
	Category       string                                `json:"category,omitempty"`
	IDs            []string                              `json:"ids,omitempty"`
	Data           map[string]map[string]json.RawMessage `json:"data,omitempty"`
	JID            string                                `json:"jid,omitempty"`
	Error          string                                `json:"error,omitempty"`
}

type lastDisconnect struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

type openFrame struct {
	Type    string          `json:"type"`
	Tenant  int64           `json:"tenant"`
	Version [3]int          `json:"version"`
	Creds   json.RawMessage `json:"creds"`
}

type requestFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type keysResultFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Values json.RawMessage `json:"values"`
}

type jidIgnoreResultFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Ignore bool   `json:"ignore"`
}

type versionResponse struct {
	Version  [3]int `json:"version"`
	IsLatest bool   `json:"isLatest"`
}
