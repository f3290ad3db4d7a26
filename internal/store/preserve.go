package store

import "encoding/json"

// knownKeys returns the JSON object keys a struct value serializes to, used
// to tell "fields we understand" apart from "fields we must round-trip
// untouched" (§4.H: "unknown fields are preserved on round trip").
func knownKeys(known any) (map[string]bool, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(m))
	for k := range m {
		keys[k] = true
	}
	return keys, nil
}

// unmarshalPreserving decodes data into known and returns whatever top-level
// fields known doesn't account for.
func unmarshalPreserving(data []byte, known any) (map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	kk, err := knownKeys(known)
	if err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range all {
		if !kk[k] {
			extra[k] = v
		}
	}
	return extra, nil
}

// marshalPreserving serializes known and splices in any extra fields that
// known's own fields don't already cover.
func marshalPreserving(known any, extra map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return json.MarshalIndent(json.RawMessage(b), "", "  ")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return json.MarshalIndent(m, "", "  ")
}
