// Package store provides the persistent shared state store that all three
// extension contexts read and write, plus a typed accessor over it.
//
// A Store is a flat key/value map whose values are JSON documents. Get never
// fails for missing keys; Set merges into existing state; Remove deletes.
// Each call is applied atomically: a concurrent Set from another context
// either sees all or none of the keys of this Set, and the last write wins
// per key. There are no multi-call transactions.
package store

import (
	"context"
	"encoding/json"
)

// Store is the shared key/value contract.
type Store interface {
	// Get returns the stored values for keys. Missing keys are absent
	// from the result map.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

	// Set merges values into the store. Keys not named in values are
	// left untouched.
	Set(ctx context.Context, values map[string]any) error

	// Remove deletes keys. Removing a missing key is not an error.
	Remove(ctx context.Context, keys ...string) error

	// Close releases the store. Every later call returns
	// model.ErrStoreUnavailable.
	Close() error
}

// encodeValues marshals every value up front so a bad value never leaves a
// partially applied Set behind.
func encodeValues(values map[string]any) (map[string]json.RawMessage, error) {
	encoded := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		encoded[k] = raw
	}
	return encoded, nil
}
