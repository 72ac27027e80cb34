package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/infrastructure/cache"
)

// TokenBlacklist records revoked token ids until they would have expired.
type TokenBlacklist struct {
	cache cache.Cache
}

// NewTokenBlacklist stores revocations in c under the "revoked" namespace.
func NewTokenBlacklist(c cache.Cache) *TokenBlacklist {
	return &TokenBlacklist{cache: cache.Namespaced(c, "revoked")}
}

// Revoke blacklists the token id for ttl. A non-positive ttl is a no-op since
// the token is already expired.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := b.cache.Set(ctx, jti, []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was blacklisted
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok, err := b.cache.Get(ctx, jti)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return ok, nil
}
