package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PropertyMap is an insertion-ordered string map, used for
// Product.DynamicProperties and ProductOffer.OfferProperties. Spec §4.4
// requires "property ordering inside the two maps is insertion order of
// first assignment" — a plain map[string]string can't honor that, since
// Go's range order is unspecified and encoding/json sorts map keys
// alphabetically on marshal.
type PropertyMap struct {
	keys   []string
	values map[string]string
}

// NewPropertyMap returns an empty PropertyMap.
func NewPropertyMap() *PropertyMap {
	return &PropertyMap{values: make(map[string]string)}
}

// Set assigns key = value. A key already present keeps its original
// position (first-assignment order); only its value is updated.
func (m *PropertyMap) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *PropertyMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len reports the number of keys.
func (m *PropertyMap) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *PropertyMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// MarshalJSON emits the map as a JSON object with keys in insertion order.
func (m PropertyMap) MarshalJSON() ([]byte, error) {
	var sb bytes.Buffer
	sb.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		sb.Write(kb)
		sb.WriteByte(':')
		sb.Write(vb)
	}
	sb.WriteByte('}')
	return sb.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order.
func (m *PropertyMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	m.keys = nil
	m.values = make(map[string]string)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("property map: expected JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("property map: expected string key")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return err
		}
		m.Set(key, val)
	}
	_, err = dec.Token()
	return err
}

// String renders the map for debugging.
func (m *PropertyMap) String() string {
	var sb strings.Builder
	for _, k := range m.keys {
		fmt.Fprintf(&sb, "%s=%q ", k, m.values[k])
	}
	return sb.String()
}
