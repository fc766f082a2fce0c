package ultradar

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// listKeys are the wrapper keys a list payload may hide behind, in the
// order they are tried.
var listKeys = []string{"items", "strategies", "data", "body", "results", "exclusions", "records"}

const maxListDepth = 4

// NormalizeList extracts the items of a list payload. It accepts a bare
// array, an object wrapping the array under one of the known keys (possibly
// nested, possibly as a JSON string) or an empty body, which yields no items.
// Anything that is not JSON is an error.
func NormalizeList(raw []byte) ([]json.RawMessage, error) {
	return normalizeList(raw, 0)
}

func normalizeList(raw []byte, depth int) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []json.RawMessage{}, nil
	}
	if !json.Valid(raw) {
		return nil, eris.New("ultradar: list payload is not JSON")
	}
	if depth > maxListDepth {
		return []json.RawMessage{}, nil
	}

	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, eris.Wrap(err, "ultradar: decode list")
		}
		return items, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, eris.Wrap(err, "ultradar: decode list string")
		}
		return normalizeList([]byte(s), depth+1)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, eris.Wrap(err, "ultradar: decode list object")
		}
		for _, k := range listKeys {
			if v, ok := obj[k]; ok {
				return normalizeList(v, depth+1)
			}
		}
	}
	return []json.RawMessage{}, nil
}
