package chatclient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// pairsToObject converts a JSON array of [key, value] pairs into a JSON object,
// keeping pair order. Objects and null pass through unchanged.
func pairsToObject(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw, nil
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(trimmed, &pairs); err != nil {
		return nil, fmt.Errorf("expected [key, value] pairs: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := make(map[string]int, len(pairs))
	entries := make([][2][]byte, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("pair %d has %d elements", i, len(pair))
		}
		key := pairKey(pair[0])
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		// Later duplicates win, in the position of the first occurrence.
		if j, ok := seen[key]; ok {
			entries[j][1] = pair[1]
			continue
		}
		seen[key] = len(entries)
		entries = append(entries, [2][]byte{k, pair[1]})
	}
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e[0])
		buf.WriteByte(':')
		buf.Write(e[1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func pairKey(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// reshapeFirstAsObject applies pairsToObject to the first element of a JSON
// array result, leaving the rest as is.
func reshapeFirstAsObject(raw json.RawMessage) (json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return raw, nil
	}
	first, err := pairsToObject(items[0])
	if err != nil {
		return nil, err
	}
	items[0] = first
	return json.Marshal(items)
}
