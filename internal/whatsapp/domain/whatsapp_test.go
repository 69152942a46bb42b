package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"PENDING":      StatusPending,
		"connecting":   StatusConnecting,
		"qrcode":       StatusQRCode,
		"QRCODE":       StatusQRCode,
		" CONNECTED ":  StatusConnected,
		"Disconnected": StatusDisconnected,
	} {
		got, ok := ParseStatus(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ParseStatus("OPENING")
	require.False(t, ok)
}

func TestWhatsapp_JSONOmitsSession(t *testing.T) {
	w := &Whatsapp{ID: 1, Status: StatusQRCode, QRCode: "qr", Session: `{"creds":{}}`}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "creds")
	require.Contains(t, string(raw), `"status":"qrcode"`)
	require.True(t, w.Paired())

	var nilW *Whatsapp
	require.False(t, nilW.Paired())
}
