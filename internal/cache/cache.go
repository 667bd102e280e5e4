// Package cache stores the last good copy of listing results so reads can
// be served when the database is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KeyPrefix is prepended to every cache key.
const KeyPrefix = "elghella:cache:"

// PublicScope is the scope used for anonymous readers.
const PublicScope = "public"

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache closed")

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A zero ttl keeps the value until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// DeleteMatch removes every key matching a glob pattern (* and ?).
	DeleteMatch(ctx context.Context, pattern string) error
	Close() error
}

// Key returns the cache key for a resource as seen by scope. An empty scope
// is the public scope.
func Key(scope, resource string) string {
	if scope == "" {
		scope = PublicScope
	}
	return KeyPrefix + scope + ":" + resource
}

// ResourcePattern matches the keys of resource in every scope.
func ResourcePattern(resource string) string {
	return KeyPrefix + "*:" + resource
}

// ScopePrefix is the prefix of every key in scope.
func ScopePrefix(scope string) string {
	return KeyPrefix + scope + ":"
}

// ScopeOf extracts the scope from a key built by Key.
func ScopeOf(key string) string {
	rest := strings.TrimPrefix(key, KeyPrefix)
	if rest == key {
		return ""
	}
	scope, _, _ := strings.Cut(rest, ":")
	return scope
}

// GetJSON decodes the value under key into v.
func GetJSON(ctx context.Context, c Cache, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
