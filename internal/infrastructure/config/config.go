package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Log            LogConfig
	HTTP           HTTPConfig
	Auth           AuthConfig
	LinkedIn       LinkedInConfig
	Apify          ApifyConfig
	Correlation    CorrelationConfig
	Reconciliation ReconciliationConfig
	Insight        InsightConfig
	Analysis       AnalysisConfig
	Enrichment     EnrichmentConfig
	Kafka          KafkaConfig
	Storage        StorageConfig
	Telemetry      TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxBodySize       int64
	CORSAllowOrigins  []string
	// RateLimitRequests per RateLimitWindow and client IP; 0 disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
	// HSTSMaxAge > 0 sends Strict-Transport-Security; set it behind TLS.
	HSTSMaxAge        time.Duration
}

// AuthConfig holds bearer-token verification settings for the API
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
}

// LinkedInConfig holds Marketing API client settings
type LinkedInConfig struct {
	BaseURL          string
	APIVersion       string
	AccessToken      string
	AdAccountID      string
	OrganizationID   string
	RateLimitPerHour int
	CacheTTL         time.Duration
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryMaxBackoff  time.Duration
	BreakerFailures  uint // failures within BreakerWindow that open the breaker
	BreakerWindow    uint
	BreakerDelay     time.Duration
}

// ApifyConfig holds scraper platform settings
type ApifyConfig struct {
	BaseURL            string
	Token              string
	ReactionsActorID   string
	EnrichmentActorID  string
	PollInterval       time.Duration
	WaitTimeout        time.Duration
	EnrichmentTimeout  time.Duration
	RunReuseWindow     time.Duration
	MaxItems           int
	RequestTimeout     time.Duration
	MaxRetries         int
	ArchiveDatasets    bool
	EnrichmentInterval time.Duration
}

// CorrelationConfig holds campaign correlation tuning
type CorrelationConfig struct {
	TimingWeight      float64
	ContentWeight     float64
	CreativeWeight    float64
	AudienceWeight    float64
	PerformanceWeight float64

	HighThreshold   float64
	MediumThreshold float64
	LowThreshold    float64
	CloseMatchBand  float64

	// CreativeConfirmThreshold is the creative sub-score at which a creative
	// reference match alone confirms the campaign.
	CreativeConfirmThreshold float64
	PerformanceBandLow       float64
	PerformanceBandHigh      float64
	MaxParallelCandidates    int
	PrimaryLinkPolicy        string
}

// ReconciliationConfig holds data quality thresholds
type ReconciliationConfig struct {
	MaxEngagementAge         time.Duration
	MediumQualityThreshold   float64
	HighQualityThreshold     float64
	DuplicateRecommendation  int
	DiscrepancyThreshold     int
	MaxParallelPosts         int
	QueueEnrichmentCandidate bool
}

// InsightConfig holds insight generation options and benchmarks
type InsightConfig struct {
	MinimumCompanySize        int
	HighValueThreshold        float64
	TargetHitRateThreshold    float64
	BenchmarkEngagementRate   float64
	BenchmarkTargetingRate    float64
	BenchmarkCostPerImpress   float64
	BenchmarkCostPerEngage    float64
	// BenchmarkQualityEngageMul is the multiple of BenchmarkCostPerEngage
	// above which cost per quality engagement is flagged.
	BenchmarkQualityEngageMul float64
}

// AnalysisConfig holds orchestrator settings
type AnalysisConfig struct {
	CacheResults bool
	CacheTTL     time.Duration
	Fallback     bool
	FetchTimeout time.Duration
}

// EnrichmentConfig holds enrichment queue scheduling
type EnrichmentConfig struct {
	Enabled           bool
	BatchSize         int
	ProcessSchedule   string
	AutoQueueSchedule string
	ResyncSchedule    string
	AutoQueueLimit    int
}

// KafkaConfig holds event forwarding settings
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	ClientID string
	Topic    string
}

// StorageConfig holds dataset archive settings
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
	ProfilingEnabled  bool
	ProfilingServer   string
}

// envFiles are merged into the process environment without overriding
// variables that are already set, so earlier files win.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles merges local dotenv files into the process environment.
// Missing files are skipped.
func loadEnvFiles() error {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
	}
	return nil
}

// Load loads configuration from dotenv files, a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CL_ prefix (e.g., CL_DATABASE_PASSWORD)
// 2. .env.local, then .env
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/campaignlens")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Zero disables retries, so these defaults apply only when unset.
	v.SetDefault("linkedin.max_retries", 2)
	v.SetDefault("apify.max_retries", 2)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),

			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			RequestTimeout:    v.GetDuration("http.request_timeout"),
			HSTSMaxAge:        v.GetDuration("http.hsts_max_age"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
		},
		LinkedIn: LinkedInConfig{
			BaseURL:          v.GetString("linkedin.base_url"),
			APIVersion:       v.GetString("linkedin.api_version"),
			AccessToken:      v.GetString("linkedin.access_token"),
			AdAccountID:      v.GetString("linkedin.ad_account_id"),
			OrganizationID:   v.GetString("linkedin.organization_id"),
			RateLimitPerHour: v.GetInt("linkedin.rate_limit_per_hour"),
			CacheTTL:         v.GetDuration("linkedin.cache_ttl"),
			Timeout:          v.GetDuration("linkedin.timeout"),
			MaxRetries:       v.GetInt("linkedin.max_retries"),
			RetryBackoff:     v.GetDuration("linkedin.retry_backoff"),
			RetryMaxBackoff:  v.GetDuration("linkedin.retry_max_backoff"),
			BreakerFailures:  v.GetUint("linkedin.breaker_failures"),
			BreakerWindow:    v.GetUint("linkedin.breaker_window"),
			BreakerDelay:     v.GetDuration("linkedin.breaker_delay"),
		},
		Apify: ApifyConfig{
			BaseURL:            v.GetString("apify.base_url"),
			Token:              v.GetString("apify.token"),
			ReactionsActorID:   v.GetString("apify.reactions_actor_id"),
			EnrichmentActorID:  v.GetString("apify.enrichment_actor_id"),
			PollInterval:       v.GetDuration("apify.poll_interval"),
			WaitTimeout:        v.GetDuration("apify.wait_timeout"),
			EnrichmentTimeout:  v.GetDuration("apify.enrichment_timeout"),
			RunReuseWindow:     v.GetDuration("apify.run_reuse_window"),
			MaxItems:           v.GetInt("apify.max_items"),
			RequestTimeout:     v.GetDuration("apify.request_timeout"),
			MaxRetries:         v.GetInt("apify.max_retries"),
			ArchiveDatasets:    v.GetBool("apify.archive_datasets"),
			EnrichmentInterval: v.GetDuration("apify.enrichment_poll_interval"),
		},
		Correlation: CorrelationConfig{
			TimingWeight:             v.GetFloat64("correlation.timing_weight"),
			ContentWeight:            v.GetFloat64("correlation.content_weight"),
			CreativeWeight:           v.GetFloat64("correlation.creative_weight"),
			AudienceWeight:           v.GetFloat64("correlation.audience_weight"),
			PerformanceWeight:        v.GetFloat64("correlation.performance_weight"),
			HighThreshold:            v.GetFloat64("correlation.high_threshold"),
			MediumThreshold:          v.GetFloat64("correlation.medium_threshold"),
			LowThreshold:             v.GetFloat64("correlation.low_threshold"),
			CloseMatchBand:           v.GetFloat64("correlation.close_match_band"),
			CreativeConfirmThreshold: v.GetFloat64("correlation.creative_confirm_threshold"),
			PerformanceBandLow:       v.GetFloat64("correlation.performance_band_low"),
			PerformanceBandHigh:      v.GetFloat64("correlation.performance_band_high"),
			MaxParallelCandidates:    v.GetInt("correlation.max_parallel_candidates"),
			PrimaryLinkPolicy:        v.GetString("correlation.primary_link_policy"),
		},
		Reconciliation: ReconciliationConfig{
			MaxEngagementAge:         v.GetDuration("reconciliation.max_engagement_age"),
			MediumQualityThreshold:   v.GetFloat64("reconciliation.medium_quality_threshold"),
			HighQualityThreshold:     v.GetFloat64("reconciliation.high_quality_threshold"),
			DuplicateRecommendation:  v.GetInt("reconciliation.duplicate_recommendation"),
			DiscrepancyThreshold:     v.GetInt("reconciliation.discrepancy_threshold"),
			MaxParallelPosts:         v.GetInt("reconciliation.max_parallel_posts"),
			QueueEnrichmentCandidate: boolDefault(v, "reconciliation.queue_enrichment_candidates", true),
		},
		Insight: InsightConfig{
			MinimumCompanySize:        v.GetInt("insight.minimum_company_size"),
			HighValueThreshold:        v.GetFloat64("insight.high_value_threshold"),
			TargetHitRateThreshold:    v.GetFloat64("insight.target_hit_rate_threshold"),
			BenchmarkEngagementRate:   v.GetFloat64("insight.benchmark_engagement_rate"),
			BenchmarkTargetingRate:    v.GetFloat64("insight.benchmark_targeting_rate"),
			BenchmarkCostPerImpress:   v.GetFloat64("insight.benchmark_cost_per_impression"),
			BenchmarkCostPerEngage:    v.GetFloat64("insight.benchmark_cost_per_engagement"),
			BenchmarkQualityEngageMul: v.GetFloat64("insight.benchmark_quality_engagement_multiplier"),
		},
		Analysis: AnalysisConfig{
			CacheResults: boolDefault(v, "analysis.cache_results", true),
			CacheTTL:     v.GetDuration("analysis.cache_ttl"),
			Fallback:     boolDefault(v, "analysis.fallback", true),
			FetchTimeout: v.GetDuration("analysis.fetch_timeout"),
		},
		Enrichment: EnrichmentConfig{
			Enabled:           v.GetBool("enrichment.enabled"),
			BatchSize:         v.GetInt("enrichment.batch_size"),
			ProcessSchedule:   v.GetString("enrichment.process_schedule"),
			AutoQueueSchedule: v.GetString("enrichment.auto_queue_schedule"),
			ResyncSchedule:    v.GetString("enrichment.resync_schedule"),
			AutoQueueLimit:    v.GetInt("enrichment.auto_queue_limit"),
		},
		Kafka: KafkaConfig{
			Enabled:  v.GetBool("kafka.enabled"),
			Brokers:  v.GetStringSlice("kafka.brokers"),
			ClientID: v.GetString("kafka.client_id"),
			Topic:    v.GetString("kafka.topic"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			Prefix:          v.GetString("storage.prefix"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// boolDefault reads a boolean that defaults to true, which a zero value
// cannot express.
func boolDefault(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "campaignlens"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "campaignlens"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "campaignlens.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "campaignlens:"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Analyses may wait for a scraper run.
		cfg.HTTP.WriteTimeout = 6 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "campaignlens"
	}

	applyLinkedInDefaults(&cfg.LinkedIn)
	applyApifyDefaults(&cfg.Apify)
	applyCorrelationDefaults(&cfg.Correlation)

	if cfg.Reconciliation.MaxEngagementAge == 0 {
		cfg.Reconciliation.MaxEngagementAge = 365 * 24 * time.Hour
	}
	if cfg.Reconciliation.MediumQualityThreshold == 0 {
		cfg.Reconciliation.MediumQualityThreshold = 0.6
	}
	if cfg.Reconciliation.HighQualityThreshold == 0 {
		cfg.Reconciliation.HighQualityThreshold = 0.8
	}
	if cfg.Reconciliation.DuplicateRecommendation == 0 {
		cfg.Reconciliation.DuplicateRecommendation = 10
	}
	if cfg.Reconciliation.DiscrepancyThreshold == 0 {
		cfg.Reconciliation.DiscrepancyThreshold = 20
	}
	if cfg.Reconciliation.MaxParallelPosts == 0 {
		cfg.Reconciliation.MaxParallelPosts = 4
	}

	if cfg.Insight.MinimumCompanySize == 0 {
		cfg.Insight.MinimumCompanySize = 2
	}
	if cfg.Insight.HighValueThreshold == 0 {
		cfg.Insight.HighValueThreshold = 5
	}
	if cfg.Insight.TargetHitRateThreshold == 0 {
		cfg.Insight.TargetHitRateThreshold = 0.3
	}
	if cfg.Insight.BenchmarkEngagementRate == 0 {
		cfg.Insight.BenchmarkEngagementRate = 0.003
	}
	if cfg.Insight.BenchmarkTargetingRate == 0 {
		cfg.Insight.BenchmarkTargetingRate = 0.15
	}
	if cfg.Insight.BenchmarkCostPerImpress == 0 {
		cfg.Insight.BenchmarkCostPerImpress = 0.001
	}
	if cfg.Insight.BenchmarkCostPerEngage == 0 {
		cfg.Insight.BenchmarkCostPerEngage = 25
	}
	if cfg.Insight.BenchmarkQualityEngageMul == 0 {
		cfg.Insight.BenchmarkQualityEngageMul = 1.5
	}

	if cfg.Analysis.CacheTTL == 0 {
		cfg.Analysis.CacheTTL = 24 * time.Hour
	}
	if cfg.Analysis.FetchTimeout == 0 {
		cfg.Analysis.FetchTimeout = 5 * time.Minute
	}

	if cfg.Enrichment.BatchSize == 0 {
		cfg.Enrichment.BatchSize = 5
	}
	if cfg.Enrichment.ProcessSchedule == "" {
		cfg.Enrichment.ProcessSchedule = "*/15 * * * *"
	}
	if cfg.Enrichment.AutoQueueSchedule == "" {
		cfg.Enrichment.AutoQueueSchedule = "0 9 * * *"
	}
	if cfg.Enrichment.ResyncSchedule == "" {
		cfg.Enrichment.ResyncSchedule = "30 3 * * *"
	}
	if cfg.Enrichment.AutoQueueLimit == 0 {
		cfg.Enrichment.AutoQueueLimit = 200
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "campaignlens"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "campaignlens.events"
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "datasets"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "campaignlens"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.ProfilingServer == "" {
		cfg.Telemetry.ProfilingServer = "http://localhost:4040"
	}
}

func applyLinkedInDefaults(c *LinkedInConfig) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.linkedin.com/rest"
	}
	if c.APIVersion == "" {
		c.APIVersion = "202501"
	}
	if c.AdAccountID == "" {
		c.AdAccountID = "510508147"
	}
	if c.RateLimitPerHour == 0 {
		c.RateLimitPerHour = 500
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.RetryMaxBackoff == 0 {
		c.RetryMaxBackoff = 5 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerWindow == 0 {
		c.BreakerWindow = 10
	}
	if c.BreakerDelay == 0 {
		c.BreakerDelay = 30 * time.Second
	}
}

func applyApifyDefaults(c *ApifyConfig) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.apify.com/v2"
	}
	if c.ReactionsActorID == "" {
		c.ReactionsActorID = "curious_coder~linkedin-post-reactions-scraper"
	}
	if c.EnrichmentActorID == "" {
		c.EnrichmentActorID = "dev_fusion~linkedin-profile-scraper"
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.WaitTimeout == 0 {
		c.WaitTimeout = 2 * time.Minute
	}
	if c.EnrichmentTimeout == 0 {
		c.EnrichmentTimeout = 5 * time.Minute
	}
	if c.EnrichmentInterval == 0 {
		c.EnrichmentInterval = 10 * time.Second
	}
	if c.RunReuseWindow == 0 {
		c.RunReuseWindow = 24 * time.Hour
	}
	if c.MaxItems == 0 {
		c.MaxItems = 500
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

func applyCorrelationDefaults(c *CorrelationConfig) {
	if c.TimingWeight+c.ContentWeight+c.CreativeWeight+c.AudienceWeight+c.PerformanceWeight == 0 {
		c.TimingWeight = 0.25
		c.ContentWeight = 0.20
		c.CreativeWeight = 0.30
		c.AudienceWeight = 0.15
		c.PerformanceWeight = 0.10
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = 0.85
	}
	if c.MediumThreshold == 0 {
		c.MediumThreshold = 0.65
	}
	if c.LowThreshold == 0 {
		c.LowThreshold = 0.45
	}
	if c.CloseMatchBand == 0 {
		c.CloseMatchBand = 0.10
	}
	if c.CreativeConfirmThreshold == 0 {
		c.CreativeConfirmThreshold = 0.95
	}
	if c.PerformanceBandLow == 0 {
		c.PerformanceBandLow = 0.001
	}
	if c.PerformanceBandHigh == 0 {
		c.PerformanceBandHigh = 0.05
	}
	if c.MaxParallelCandidates == 0 {
		c.MaxParallelCandidates = 4
	}
	if c.PrimaryLinkPolicy == "" {
		c.PrimaryLinkPolicy = "first_write_wins"
	}
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if err := c.Correlation.validate(); err != nil {
		return err
	}
	if c.Reconciliation.MediumQualityThreshold > c.Reconciliation.HighQualityThreshold {
		return fmt.Errorf("reconciliation.medium_quality_threshold cannot exceed reconciliation.high_quality_threshold")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	if c.IsProduction() {
		if c.LinkedIn.AccessToken == "" {
			return fmt.Errorf("linkedin.access_token is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if !c.Auth.Enabled {
			return fmt.Errorf("auth must be enabled in production")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func (c CorrelationConfig) validate() error {
	sum := c.TimingWeight + c.ContentWeight + c.CreativeWeight + c.AudienceWeight + c.PerformanceWeight
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("correlation weights must sum to 1.0, got %.3f", sum)
	}
	if !(c.LowThreshold < c.MediumThreshold && c.MediumThreshold < c.HighThreshold && c.HighThreshold <= 1.0) {
		return fmt.Errorf("correlation thresholds must satisfy low < medium < high <= 1.0")
	}
	if c.PerformanceBandLow >= c.PerformanceBandHigh {
		return fmt.Errorf("correlation.performance_band_low must be below correlation.performance_band_high")
	}
	switch c.PrimaryLinkPolicy {
	case "first_write_wins", "highest_confidence":
	default:
		return fmt.Errorf("correlation.primary_link_policy must be first_write_wins or highest_confidence, got %q", c.PrimaryLinkPolicy)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
