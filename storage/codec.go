package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// Encode serializes each item for an area backend.
func Encode(items map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(items))

	for k, v := range items {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("storage encode %s: %w", k, errors.Join(berr.ErrSerializationFailed, err))
		}

		out[k] = raw
	}

	return out, nil
}

// DecodeValue is the inverse of Encode for a single value.
func DecodeValue(key string, raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("storage decode %s: %w", key, errors.Join(berr.ErrSerializationFailed, err))
	}

	return v, nil
}
