package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestBuild_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l := build(&bytes.Buffer{}, tt.in)
		require.Equal(t, tt.want, l.GetLevel(), tt.in)
	}
}

func TestBuild_WritesJSONWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := build(&buf, "info")
	l.Debug().Msg("hidden")
	l.Info().Int64("whatsapp_id", 7).Msg("session connected")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "session connected", line["message"])
	require.EqualValues(t, 7, line["whatsapp_id"])
	require.Contains(t, line, "time")
}

func TestSetGlobal(t *testing.T) {
	prev, prevCtx := log.Logger, zerolog.DefaultContextLogger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.DefaultContextLogger = prevCtx
	})

	var buf bytes.Buffer
	SetGlobal(build(&buf, "info"))
	log.Info().Msg("from global")
	require.Contains(t, buf.String(), "from global")
}
