package authstate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Creds is the account-level credential record. Its shape is owned by the protocol client;
// binary fields are []byte.
type Creds map[string]any

// State is one instance's credentials plus its key bag, keyed by category then id.
// Values of opaque categories are kept exactly as they were set or decoded.
type State struct {
	Creds Creds
	Keys  map[Category]map[string]any
}

// CredsInitializer produces fresh credentials for an instance that was never paired.
type CredsInitializer func() (Creds, error)

// ErrMissingCreds is wrapped by DecodeError when a blob has no creds object.
var ErrMissingCreds = errors.New("authstate: blob has no creds")

// DecodeError reports a persisted blob that could not be parsed. Callers treat it as
// "never paired" rather than failing the instance.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("authstate: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type wireState struct {
	Creds json.RawMessage                       `json:"creds"`
	Keys  map[string]map[string]json.RawMessage `json:"keys"`
}

// NewState returns a State holding creds and an empty key bag.
func NewState(creds Creds) *State {
	if creds == nil {
		creds = Creds{}
	}
	return &State{Creds: creds, Keys: make(map[Category]map[string]any)}
}

// Fresh initializes a new State using init. A nil init yields empty credentials.
func Fresh(init CredsInitializer) (*State, error) {
	if init == nil {
		return NewState(nil), nil
	}
	creds, err := init()
	if err != nil {
		return nil, fmt.Errorf("authstate: init creds: %w", err)
	}
	Normalize(creds)
	return NewState(creds), nil
}

// Decode parses a persisted blob. An empty blob yields Fresh(init). A malformed blob returns
// a *DecodeError and a nil State.
func Decode(blob string, init CredsInitializer) (*State, error) {
	if strings.TrimSpace(blob) == "" {
		return Fresh(init)
	}
	var w wireState
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if isNull(w.Creds) {
		return nil, &DecodeError{Err: ErrMissingCreds}
	}
	credsVal, err := UnmarshalValue(w.Creds)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	credsMap, ok := credsVal.(map[string]any)
	if !ok {
		return nil, &DecodeError{Err: fmt.Errorf("creds is %T, want object", credsVal)}
	}
	st := NewState(Creds(credsMap))
	for bagName, entries := range w.Keys {
		cat := categoryForBag(bagName)
		bag := make(map[string]any, len(entries))
		for id, raw := range entries {
			if isNull(raw) {
				continue
			}
			if !cat.Binary() {
				bag[id] = json.RawMessage(bytes.Clone(raw))
				continue
			}
			v, err := UnmarshalValue(raw)
			if err != nil {
				return nil, &DecodeError{Err: fmt.Errorf("keys.%s.%s: %w", bagName, id, err)}
			}
			bag[id] = v
		}
		st.Keys[cat] = bag
	}
	return st, nil
}

// Encode serializes st to the persisted blob form. st is not modified.
func Encode(st *State) (string, error) {
	if st == nil {
		return "", errors.New("authstate: encode nil state")
	}
	out := struct {
		Creds any                       `json:"creds"`
		Keys  map[string]map[string]any `json:"keys"`
	}{
		Creds: tag(map[string]any(st.Creds)),
		Keys:  make(map[string]map[string]any, len(st.Keys)),
	}
	for cat, entries := range st.Keys {
		bag := make(map[string]any, len(entries))
		for id, v := range entries {
			if cat.Binary() {
				bag[id] = tag(v)
			} else {
				bag[id] = v
			}
		}
		out.Keys[cat.Bag()] = bag
	}
	b, err := marshal(out)
	if err != nil {
		return "", fmt.Errorf("authstate: encode: %w", err)
	}
	return string(b), nil
}

// MarshalValue encodes v as JSON with every []byte tagged.
func MarshalValue(v any) ([]byte, error) {
	return marshal(tag(v))
}

// UnmarshalValue decodes JSON preserving number text and normalizes binary-looking values.
func UnmarshalValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
