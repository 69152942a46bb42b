package authstate

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
)

const (
	bufferTag  = "Buffer"
	tagTypeKey = "type"
	tagDataKey = "data"
)

// Normalize converts every binary-looking value reachable from v to []byte, replacing children
// of maps and slices in place, and returns the (possibly replaced) root. Applying it twice
// gives the same result as applying it once.
//
// Binary-looking values are: a {"type":"Buffer","data":...} object whose data is base64 text or
// bytes; a non-empty array of integers in 0..255; a non-empty object whose keys are exactly
// "0".."n-1" each holding an integer in 0..255. Plain strings are never decoded: they cannot be
// told apart from text fields that merely look like base64.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, []byte:
		return x
	case Creds:
		for k, child := range x {
			x[k] = Normalize(child)
		}
		return x
	case map[string]any:
		if b, ok := taggedBytes(x); ok {
			return b
		}
		if b, ok := indexedBytes(x); ok {
			return b
		}
		for k, child := range x {
			x[k] = Normalize(child)
		}
		return x
	case []any:
		if b, ok := arrayBytes(x); ok {
			return b
		}
		for i := range x {
			x[i] = Normalize(x[i])
		}
		return x
	default:
		return v
	}
}

func taggedBytes(m map[string]any) ([]byte, bool) {
	if len(m) != 2 {
		return nil, false
	}
	if t, _ := m[tagTypeKey].(string); t != bufferTag {
		return nil, false
	}
	data, ok := m[tagDataKey]
	if !ok {
		return nil, false
	}
	switch d := Normalize(data).(type) {
	case []byte:
		return d, true
	case []any:
		if len(d) == 0 {
			return []byte{}, true
		}
	case string:
		return decodeBase64(d)
	}
	return nil, false
}

func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, true
		}
	}
	return nil, false
}

func arrayBytes(a []any) ([]byte, bool) {
	if len(a) == 0 {
		return nil, false
	}
	out := make([]byte, len(a))
	for i, v := range a {
		b, ok := asByte(v)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func indexedBytes(m map[string]any) ([]byte, bool) {
	if len(m) == 0 {
		return nil, false
	}
	out := make([]byte, len(m))
	for i := range out {
		v, ok := m[strconv.Itoa(i)]
		if !ok {
			return nil, false
		}
		b, ok := asByte(v)
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

func asByte(v any) (byte, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil {
			return 0, false
		}
		f = float64(i)
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint8:
		return n, true
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		if n > math.MaxUint8 {
			return 0, false
		}
		return byte(n), true
	default:
		return 0, false
	}
	if f < 0 || f > math.MaxUint8 || f != math.Trunc(f) {
		return 0, false
	}
	return byte(f), true
}

// tag returns a copy of v with every []byte replaced by its tagged JSON form.
func tag(v any) any {
	switch x := v.(type) {
	case []byte:
		return map[string]any{tagTypeKey: bufferTag, tagDataKey: base64.StdEncoding.EncodeToString(x)}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[k] = tag(child)
		}
		return out
	case Creds:
		return tag(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = tag(child)
		}
		return out
	default:
		return v
	}
}
