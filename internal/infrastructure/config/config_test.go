package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"CL_APP_NAME":                  os.Getenv("CL_APP_NAME"),
		"CL_APP_ENV":                   os.Getenv("CL_APP_ENV"),
		"CL_APP_PORT":                  os.Getenv("CL_APP_PORT"),
		"CL_DATABASE_DRIVER":           os.Getenv("CL_DATABASE_DRIVER"),
		"CL_DATABASE_HOST":             os.Getenv("CL_DATABASE_HOST"),
		"CL_DATABASE_PORT":             os.Getenv("CL_DATABASE_PORT"),
		"CL_DATABASE_MAX_OPEN_CONNS":   os.Getenv("CL_DATABASE_MAX_OPEN_CONNS"),
		"CL_DATABASE_MAX_IDLE_CONNS":   os.Getenv("CL_DATABASE_MAX_IDLE_CONNS"),
		"CL_LINKEDIN_AD_ACCOUNT_ID":    os.Getenv("CL_LINKEDIN_AD_ACCOUNT_ID"),
		"CL_LINKEDIN_CACHE_TTL":        os.Getenv("CL_LINKEDIN_CACHE_TTL"),
		"CL_ANALYSIS_CACHE_RESULTS":    os.Getenv("CL_ANALYSIS_CACHE_RESULTS"),
		"CL_CORRELATION_TIMING_WEIGHT": os.Getenv("CL_CORRELATION_TIMING_WEIGHT"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "campaignlens", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)

		assert.Equal(t, "https://api.linkedin.com/rest", cfg.LinkedIn.BaseURL)
		assert.Equal(t, "202501", cfg.LinkedIn.APIVersion)
		assert.Equal(t, 500, cfg.LinkedIn.RateLimitPerHour)
		assert.Equal(t, 5*time.Minute, cfg.LinkedIn.CacheTTL)
		assert.Equal(t, 10*time.Second, cfg.LinkedIn.Timeout)

		assert.Equal(t, 24*time.Hour, cfg.Apify.RunReuseWindow)
		assert.Equal(t, 2*time.Minute, cfg.Apify.WaitTimeout)
		assert.Equal(t, 500, cfg.Apify.MaxItems)

		assert.Equal(t, 0.25, cfg.Correlation.TimingWeight)
		assert.Equal(t, 0.30, cfg.Correlation.CreativeWeight)
		assert.Equal(t, 0.85, cfg.Correlation.HighThreshold)
		assert.Equal(t, 0.45, cfg.Correlation.LowThreshold)
		assert.Equal(t, 0.10, cfg.Correlation.CloseMatchBand)
		assert.Equal(t, "first_write_wins", cfg.Correlation.PrimaryLinkPolicy)

		assert.Equal(t, 365*24*time.Hour, cfg.Reconciliation.MaxEngagementAge)
		assert.Equal(t, 0.6, cfg.Reconciliation.MediumQualityThreshold)
		assert.True(t, cfg.Reconciliation.QueueEnrichmentCandidate)

		assert.True(t, cfg.Analysis.CacheResults)
		assert.True(t, cfg.Analysis.Fallback)
		assert.Equal(t, 24*time.Hour, cfg.Analysis.CacheTTL)

		assert.Equal(t, "*/15 * * * *", cfg.Enrichment.ProcessSchedule)
		assert.Equal(t, "0 9 * * *", cfg.Enrichment.AutoQueueSchedule)
		assert.Equal(t, 5, cfg.Enrichment.BatchSize)
	})

	t.Run("loads values from environment variables with CL prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("CL_APP_NAME", "test-app")
		os.Setenv("CL_APP_PORT", "9000")
		os.Setenv("CL_DATABASE_DRIVER", "sqlite")
		os.Setenv("CL_LINKEDIN_AD_ACCOUNT_ID", "123")
		os.Setenv("CL_LINKEDIN_CACHE_TTL", "90s")
		os.Setenv("CL_ANALYSIS_CACHE_RESULTS", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "123", cfg.LinkedIn.AdAccountID)
		assert.Equal(t, 90*time.Second, cfg.LinkedIn.CacheTTL)
		assert.False(t, cfg.Analysis.CacheResults)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv()
		os.Setenv("CL_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("CL_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv()
		os.Setenv("CL_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects weights that do not sum to one", func(t *testing.T) {
		clearEnv()
		os.Setenv("CL_CORRELATION_TIMING_WEIGHT", "0.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weights must sum to 1.0")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("CL_APP_ENV", "production")
		t.Setenv("CL_LINKEDIN_ACCESS_TOKEN", "token")
		t.Setenv("CL_DATABASE_PASSWORD", "secure-password")
		t.Setenv("CL_AUTH_ENABLED", "true")
		t.Setenv("CL_AUTH_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
	}

	t.Run("valid production configuration loads", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires linkedin access token", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CL_LINKEDIN_ACCESS_TOKEN", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "linkedin.access_token is required in production")
	})

	t.Run("requires auth", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CL_AUTH_ENABLED", "false")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth must be enabled")
	})

	t.Run("requires long jwt secret", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CL_AUTH_JWT_SECRET", "short")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CL_APP_NAME=from-dotenv\nCL_APP_PORT=7000\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("CL_APP_PORT=7001\n"), 0o600))
	t.Chdir(dir)

	t.Setenv("CL_APP_NAME", "")
	os.Unsetenv("CL_APP_NAME")
	t.Setenv("CL_APP_PORT", "")
	os.Unsetenv("CL_APP_PORT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.App.Name)
	assert.Equal(t, "7001", cfg.App.Port)
}

func TestCorrelationConfig_Validate(t *testing.T) {
	base := CorrelationConfig{}
	applyCorrelationDefaults(&base)
	require.NoError(t, base.validate())

	tests := []struct {
		name   string
		mutate func(c *CorrelationConfig)
		errMsg string
	}{
		{"thresholds out of order", func(c *CorrelationConfig) { c.MediumThreshold = 0.9 }, "low < medium < high"},
		{"performance band inverted", func(c *CorrelationConfig) { c.PerformanceBandLow = 0.1 }, "performance_band_low"},
		{"unknown link policy", func(c *CorrelationConfig) { c.PrimaryLinkPolicy = "latest" }, "primary_link_policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss word", DBName: "cl", SSLMode: "require"}

	assert.Equal(t, "postgres://u:p%40ss%20word@db:5432/cl?sslmode=require", d.DSN())
}

func TestLoad_RetryCounts(t *testing.T) {
	t.Run("unset uses defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.LinkedIn.MaxRetries)
		assert.Equal(t, 2, cfg.Apify.MaxRetries)
	})

	t.Run("zero disables retries", func(t *testing.T) {
		t.Setenv("CL_LINKEDIN_MAX_RETRIES", "0")
		t.Setenv("CL_APIFY_MAX_RETRIES", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Zero(t, cfg.LinkedIn.MaxRetries)
		assert.Zero(t, cfg.Apify.MaxRetries)
	})
}

func TestLoad_HSTSMaxAge(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.HTTP.HSTSMaxAge)

	t.Setenv("CL_HTTP_HSTS_MAX_AGE", "8760h")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 365*24*time.Hour, cfg.HTTP.HSTSMaxAge)
}
