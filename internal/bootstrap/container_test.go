package bootstrap

import (
	"context"
	"testing"

	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/application/enrichment"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("CL_DATABASE_DRIVER", "sqlite")
	t.Setenv("CL_DATABASE_SQLITE_PATH", ":memory:")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func jobNames(c *Container) []string {
	var names []string
	for _, j := range c.Jobs() {
		names = append(names, j.Name)
	}
	return names
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, nil)
	reg := prometheus.NewRegistry()

	c, err := New(ctx, cfg, nil, WithRegistry(reg))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(ctx)) }()

	assert.Same(t, reg, c.Registry)
	assert.NotNil(t, c.Orchestrator)
	assert.NotNil(t, c.Correlator)
	assert.NotNil(t, c.Reconciler)
	assert.NotNil(t, c.Insights)
	assert.Nil(t, c.Kafka)
	assert.Empty(t, jobNames(c))

	t.Run("sqlite schema is migrated", func(t *testing.T) {
		post := analytics.NewPost("https://www.linkedin.com/feed/update/urn:li:activity:7123456789012345678/")
		require.NoError(t, c.Repos.Posts.Upsert(ctx, post))

		found, err := c.Repos.Posts.FindByURL(ctx, post.URL)
		require.NoError(t, err)
		assert.Equal(t, post.ID, found.ID)
	})

	t.Run("cache is usable", func(t *testing.T) {
		require.NoError(t, c.Cache.Set(ctx, "k", []byte("v"), 0))
		v, ok, err := c.Cache.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v"), v)
	})
}

func TestContainer_Jobs(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, map[string]string{
		"CL_ENRICHMENT_ENABLED":     "true",
		"CL_LINKEDIN_AD_ACCOUNT_ID": "507404993",
	})

	c, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(ctx)) }()

	assert.ElementsMatch(t, []string{enrichment.JobProcessQueue, enrichment.JobAutoQueue, campaign.JobResync}, jobNames(c))
}

func TestNew_InvalidLinkPolicy(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t, nil)
	cfg.Correlation.PrimaryLinkPolicy = "last_write_wins"

	_, err := New(ctx, cfg, nil)
	assert.Error(t, err)
}
