// Package cache provides the key/value cache shared by the LinkedIn client,
// the URN resolver and the analysis orchestrator, backed by Redis or by an
// in-process map.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache stores opaque values with a TTL. A zero TTL means no expiry.
type Cache interface {
	// Get returns the value and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores the value only if the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Clear removes every key owned by this cache.
	Clear(ctx context.Context) error
	Close() error
}

// GetJSON decodes a cached JSON value into dst. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value as JSON and stores it.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s for cache: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

// Namespaced returns a view of c whose keys are prefixed with ns and a colon.
// Clear on the view only removes the namespace's keys when the backing cache
// supports prefix deletion.
func Namespaced(c Cache, ns string) Cache {
	return &namespaced{inner: c, prefix: ns + ":"}
}

type prefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string) error
}

type namespaced struct {
	inner  Cache
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.inner.Set(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return n.inner.SetNX(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = n.prefix + k
	}
	return n.inner.Delete(ctx, full...)
}

func (n *namespaced) Clear(ctx context.Context) error {
	if pc, ok := n.inner.(prefixClearer); ok {
		return pc.ClearPrefix(ctx, n.prefix)
	}
	return n.inner.Clear(ctx)
}

// Close is a no-op; the backing cache is owned by whoever created it.
func (n *namespaced) Close() error { return nil }
