package docstore

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// envelopeKeys are the wrapper fields some writers put around a document,
// in the order they are tried.
var envelopeKeys = []string{"payload", "body", "data"}

const maxEnvelopeDepth = 4

// UnwrapEnvelope strips up to four levels of {"payload"|"body"|"data": doc}
// wrapping. A body may hold the document as a JSON string. Unwrapping stops
// at the first object that has none of those keys holding an object.
func UnwrapEnvelope(raw []byte) (json.RawMessage, error) {
	cur := bytes.TrimSpace(raw)
	if !json.Valid(cur) {
		return nil, eris.New("docstore: payload is not valid JSON")
	}
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		inner, ok := unwrapOnce(cur)
		if !ok {
			break
		}
		cur = inner
	}
	return json.RawMessage(cur), nil
}

func unwrapOnce(raw []byte) ([]byte, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	for _, k := range envelopeKeys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '"' {
			var s string
			if json.Unmarshal(v, &s) != nil {
				continue
			}
			v = []byte(strings.TrimSpace(s))
			if !json.Valid(v) {
				continue
			}
		}
		if len(v) > 0 && v[0] == '{' {
			return v, true
		}
	}
	return nil, false
}

// ResolveKey returns the object key carried on a loaded record, checking
// "key", "Key" and "object_key" in that order.
func ResolveKey(record []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return "", eris.Wrap(err, "docstore: decode record")
	}
	for _, k := range []string{"key", "Key", "object_key"} {
		var s string
		if json.Unmarshal(fields[k], &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", ErrNoObjectKey
}
