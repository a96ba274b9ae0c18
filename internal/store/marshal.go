package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/graphsync/internal/record"
)

// marshalRecord converts a record to canonical JSON TEXT for storage and
// returns its content hash.
func marshalRecord(rec record.Object) (string, string, error) {
	data, err := record.MarshalCanonical(rec)
	if err != nil {
		return "", "", fmt.Errorf("marshal record: %w", err)
	}
	hash, err := record.ContentHash(rec)
	if err != nil {
		return "", "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), hash, nil
}

// unmarshalRecord parses canonical JSON TEXT to a record.
// Uses record.Object.UnmarshalJSON, which keeps integers exact and tells
// integers from floats.
func unmarshalRecord(data string) (record.Object, error) {
	var obj record.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return obj, nil
}

// recordHeader extracts the type key and the name attribute, when present.
func recordHeader(rec record.Object) (typeName, name string, err error) {
	typeName, inner, ok := record.Unwrap(rec)
	if !ok {
		return "", "", fmt.Errorf("record must have exactly one type key, got %d keys", len(rec))
	}
	if n, ok := inner["name"].(record.String); ok {
		name = string(n)
	}
	return typeName, name, nil
}
