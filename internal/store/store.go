package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known keys of the persisted client state.
const (
	KeyCities            = "cities"
	KeyActiveCity        = "city_id"
	KeyFeedSnapshot      = "cached_properties"
	KeyInterestOverlay   = "interest_overlay"
	KeyRecentSuggestions = "recentSuggestions"
	KeyProfile           = "profileData"
)

// UserScopedKeys are removed on logout.
var UserScopedKeys = []string{KeyActiveCity, KeyFeedSnapshot, KeyInterestOverlay, KeyProfile}

// KeyValueStore is the persistent key/value storage the client state lives in.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetJSON decodes the value stored under key into v. It reports false when
// the key is absent.
func GetJSON(ctx context.Context, s KeyValueStore, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("store: decode %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s KeyValueStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// RemoveAll removes every key, returning the first error.
func RemoveAll(ctx context.Context, s KeyValueStore, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
