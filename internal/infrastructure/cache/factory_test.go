package cache

import (
	"context"
	"testing"

	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactory_CreateCache(t *testing.T) {
	unreachable := config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}

	t.Run("disabled redis uses memory", func(t *testing.T) {
		c, err := NewFactory(config.RedisConfig{}).CreateCache(context.Background())
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryCache{}, c)
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		c, err := NewFactory(unreachable, WithLogger(zap.NewNop())).CreateCache(context.Background())
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryCache{}, c)
	})

	t.Run("fallback disabled returns error", func(t *testing.T) {
		_, err := NewFactory(unreachable, WithInMemoryFallback(false)).CreateCache(context.Background())
		assert.ErrorContains(t, err, "redis required")
	})
}
