package pricing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Attributes is an ordered mapping of option key to option value, for example
// {"Size":"A4","Sides":"Single"}. Keys are unique; setting an existing key
// replaces its value in place. Order is kept for presentation only: equality
// and fingerprints ignore it. The zero value is an empty set.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes builds a set from alternating key, value arguments.
func NewAttributes(kv ...string) Attributes {
	var a Attributes
	for i := 0; i+1 < len(kv); i += 2 {
		a.Set(kv[i], kv[i+1])
	}
	return a
}

// AttributesFromMap builds a set from m with keys in sorted order.
func AttributesFromMap(m map[string]string) Attributes {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var a Attributes
	for _, k := range keys {
		a.Set(k, m[k])
	}
	return a
}

// Set stores value under key.
func (a *Attributes) Set(key, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (string, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of keys.
func (a Attributes) Len() int {
	return len(a.keys)
}

// Map returns a copy of the pairs as a plain map.
func (a Attributes) Map() map[string]string {
	out := make(map[string]string, len(a.keys))
	for _, k := range a.keys {
		out[k] = a.values[k]
	}
	return out
}

// Equal reports whether both sets hold the same pairs, in any order.
func (a Attributes) Equal(b Attributes) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, k := range a.keys {
		v, ok := b.values[k]
		if !ok || v != a.values[k] {
			return false
		}
	}
	return true
}

// Fingerprint is an order-independent canonical encoding of the set, used to
// enforce one active row per attribute combination.
func (a Attributes) Fingerprint() string {
	keys := a.Keys()
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, a.values[k]})
	}
	raw, _ := json.Marshal(pairs)
	return string(raw)
}

// Matches reports whether the row attributes agree with every value the
// selection specifies for keys present in the row. Keys the selection leaves
// out, or sets blank, act as wildcards; selection keys unknown to the row are
// ignored.
func (a Attributes) Matches(sel Selection) bool {
	for _, k := range a.keys {
		want, ok := sel[k]
		if !ok {
			continue
		}
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		if want != strings.TrimSpace(a.values[k]) {
			return false
		}
	}
	return true
}

func (a Attributes) String() string {
	parts := make([]string, 0, len(a.keys))
	for _, k := range a.keys {
		parts = append(parts, k+"="+a.values[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the set as a JSON object in key order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping document order.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	*a = Attributes{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("pricing: attributes must be a JSON object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("pricing: attribute key must be a string")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("pricing: attribute %q: %w", key, err)
		}
		a.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// Selection is the caller's attribute choice for a quote.
type Selection map[string]string
