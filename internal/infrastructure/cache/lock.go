package cache

import (
	"context"
	"time"
)

// WithLock runs fn while holding key. It returns false without running fn
// when another holder owns the key. The lock expires after ttl even if the
// holder dies before releasing it.
func WithLock(ctx context.Context, c Cache, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	acquired, err := c.SetNX(ctx, "lock:"+key, []byte(time.Now().UTC().Format(time.RFC3339)), ttl)
	if err != nil || !acquired {
		return false, err
	}
	defer func() { _ = c.Delete(context.WithoutCancel(ctx), "lock:"+key) }()
	return true, fn(ctx)
}
