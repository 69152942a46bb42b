package authstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"bytes kept", []byte{1, 2}, []byte{1, 2}},
		{"tagged base64", map[string]any{"type": "Buffer", "data": "AQID"}, []byte{1, 2, 3}},
		{"tagged numeric data", map[string]any{"type": "Buffer", "data": []any{float64(9), float64(8)}}, []byte{9, 8}},
		{"tagged empty data", map[string]any{"type": "Buffer", "data": ""}, []byte{}},
		{"numeric array", []any{float64(0), float64(255), json.Number("7")}, []byte{0, 255, 7}},
		{"digit keyed object", map[string]any{"1": float64(2), "0": float64(1)}, []byte{1, 2}},
		{"out of range array untouched", []any{float64(1), float64(256)}, []any{float64(1), float64(256)}},
		{"fractional array untouched", []any{1.5}, []any{1.5}},
		{"gap in digit keys untouched", map[string]any{"0": float64(1), "2": float64(2)}, map[string]any{"0": float64(1), "2": float64(2)}},
		{"empty array untouched", []any{}, []any{}},
		{"empty object untouched", map[string]any{}, map[string]any{}},
		{"plain string untouched", "AQID", "AQID"},
		{"scalar untouched", float64(3), float64(3)},
		{"nil untouched", nil, nil},
		{"tagged with bad base64 untouched", map[string]any{"type": "Buffer", "data": "***"}, map[string]any{"type": "Buffer", "data": "***"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalize_RecursesInPlace(t *testing.T) {
	in := map[string]any{
		"noiseKey": map[string]any{
			"private": map[string]any{"type": "Buffer", "data": "AQ=="},
			"public":  map[string]any{"0": float64(5), "1": float64(6)},
		},
		"signalIdentities": []any{
			map[string]any{"identifierKey": []any{float64(1), float64(2)}, "identifier": map[string]any{"name": "x"}},
		},
		"registrationId": float64(77),
	}
	out := Normalize(in).(map[string]any)
	noise := out["noiseKey"].(map[string]any)
	require.Equal(t, []byte{1}, noise["private"])
	require.Equal(t, []byte{5, 6}, noise["public"])
	ids := out["signalIdentities"].([]any)
	require.Equal(t, []byte{1, 2}, ids[0].(map[string]any)["identifierKey"])
	require.Equal(t, "x", ids[0].(map[string]any)["identifier"].(map[string]any)["name"])
	require.Equal(t, float64(77), out["registrationId"])
	// children replaced in the caller's map
	require.Equal(t, []byte{1}, in["noiseKey"].(map[string]any)["private"])
}

func TestNormalize_Idempotent(t *testing.T) {
	build := func() any {
		return map[string]any{
			"a": map[string]any{"type": "Buffer", "data": map[string]any{"0": float64(1)}},
			"b": []any{float64(1), float64(2)},
			"c": []any{map[string]any{"0": float64(3)}, "text"},
			"d": map[string]any{"nested": map[string]any{"type": "Buffer", "data": "/w=="}},
		}
	}
	once := Normalize(build())
	twice := Normalize(Normalize(build()))
	require.Equal(t, once, twice)
	require.Equal(t, []byte{1}, once.(map[string]any)["a"])
	require.Equal(t, []byte{255}, once.(map[string]any)["d"].(map[string]any)["nested"])
}
