package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParamPair is one key/value entry of an ActionParameters document, kept in
// declaration order.
type ParamPair struct {
	Key   string
	Value string
}

// ActionParameters is ActionConfig's Parameters map, preserving JSON
// declaration order. Order matters for Switch's "When:<k>" evaluation
// (spec §4.3: "evaluate When:<k> params in declaration order"); a plain
// map[string]string would lose it on unmarshal.
type ActionParameters struct {
	pairs []ParamPair
}

// UnmarshalJSON decodes a JSON object into ordered key/value pairs.
func (p *ActionParameters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		p.pairs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("action parameters: expected JSON object")
	}

	var pairs []ParamPair
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("action parameters: expected string key")
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("action parameters: key %q: %w", key, err)
		}
		pairs = append(pairs, ParamPair{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return err
	}
	p.pairs = pairs
	return nil
}

// MarshalJSON re-emits the pairs as a JSON object, preserving order is not
// guaranteed on the wire (JSON objects are unordered) but round-trips values.
func (p ActionParameters) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(p.pairs))
	for _, kv := range p.pairs {
		m[kv.Key] = kv.Value
	}
	return json.Marshal(m)
}

// Get returns the value for key, matched case-insensitively.
func (p ActionParameters) Get(key string) (string, bool) {
	for _, kv := range p.pairs {
		if strings.EqualFold(kv.Key, key) {
			return kv.Value, true
		}
	}
	return "", false
}

// Pairs returns all key/value pairs in declaration order.
func (p ActionParameters) Pairs() []ParamPair {
	out := make([]ParamPair, len(p.pairs))
	copy(out, p.pairs)
	return out
}

// WithPrefix returns all pairs whose key starts with prefix
// (case-insensitive), in declaration order, with the prefix stripped from
// the returned key. Used for Switch's "When:<k>" parameters.
func (p ActionParameters) WithPrefix(prefix string) []ParamPair {
	var out []ParamPair
	for _, kv := range p.pairs {
		if len(kv.Key) >= len(prefix) && strings.EqualFold(kv.Key[:len(prefix)], prefix) {
			out = append(out, ParamPair{Key: kv.Key[len(prefix):], Value: kv.Value})
		}
	}
	return out
}

// Len reports how many parameters are set.
func (p ActionParameters) Len() int { return len(p.pairs) }
