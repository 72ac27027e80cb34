// Package bootstrap assembles the analytics services from configuration.
// Both the API server and campaignctl build their dependency graph here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/campaignlens/backend/internal/application/analysis"
	"github.com/campaignlens/backend/internal/application/campaign"
	"github.com/campaignlens/backend/internal/application/correlation"
	"github.com/campaignlens/backend/internal/application/enrichment"
	"github.com/campaignlens/backend/internal/application/insight"
	"github.com/campaignlens/backend/internal/application/reconciliation"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/event"
	"github.com/campaignlens/backend/internal/infrastructure/linkedin"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/campaignlens/backend/internal/infrastructure/persistence"
	"github.com/campaignlens/backend/internal/infrastructure/scheduler"
	"github.com/campaignlens/backend/internal/infrastructure/scraper"
	"github.com/campaignlens/backend/internal/infrastructure/storage"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/campaignlens/backend/internal/infrastructure/urn"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// meterName scopes the pipeline instruments.
const meterName = "campaignlens/pipeline"

// Container holds the wired services.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *persistence.Database
	Repos    *persistence.Repositories
	Cache    cache.Cache
	Bus      *event.InMemoryEventBus
	Kafka    *event.KafkaForwarder
	Registry *prometheus.Registry

	LinkedIn     *linkedin.Client
	Scraper      *scraper.Client
	Resolver     *urn.Resolver
	Correlator   *correlation.Correlator
	Reconciler   *reconciliation.Reconciler
	Linker       *campaign.Linker
	Syncer       *campaign.Syncer
	Targeting    *campaign.TargetingResolver
	Demographics *campaign.DemographicsService
	Insights     *insight.Service
	Enrichment   *enrichment.Service
	Tracker      *analysis.Tracker
	Orchestrator *analysis.Orchestrator

	closers []func(context.Context) error
}

// Option configures New.
type Option func(*options)

type options struct {
	db       *persistence.Database
	cache    cache.Cache
	meter    metric.Meter
	registry *prometheus.Registry
}

// WithDatabase uses an already opened database instead of connecting.
func WithDatabase(db *persistence.Database) Option {
	return func(o *options) { o.db = db }
}

// WithCache uses c instead of building one from the redis settings.
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithMeter records pipeline metrics on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithRegistry registers the prometheus collectors on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New connects the stores and builds every service. On error the
// resources opened so far are released.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (_ *Container, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Container{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := c.openStores(ctx, o); err != nil {
		return nil, err
	}
	if err := c.openEvents(ctx); err != nil {
		return nil, err
	}
	if err := c.buildServices(ctx, o); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) openStores(ctx context.Context, o options) error {
	cfg := c.Config

	c.DB = o.db
	if c.DB == nil {
		db, err := persistence.NewDatabase(&cfg.Database,
			persistence.WithLogger(c.Logger, logger.MapGormLogLevel(cfg.Log.Level)),
			persistence.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		)
		if err != nil {
			return err
		}
		c.DB = db
		c.onClose(func(context.Context) error { return db.Close() })
	}
	if c.DB.Driver() == persistence.DriverSQLite {
		if err := c.DB.AutoMigrate(ctx); err != nil {
			return err
		}
	}
	if err := telemetry.RegisterDBTracing(c.DB.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:        c.DB.Driver(),
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, c.Logger); err != nil {
		return fmt.Errorf("register db tracing: %w", err)
	}
	c.Repos = c.DB.Repositories()

	c.Cache = o.cache
	if c.Cache == nil {
		cc, err := cache.NewFactory(cfg.Redis,
			cache.WithLogger(c.Logger),
			cache.WithInMemoryFallback(!cfg.IsProduction()),
		).CreateCache(ctx)
		if err != nil {
			return err
		}
		c.Cache = cc
		c.onClose(func(context.Context) error { return cc.Close() })
	}

	c.Registry = o.registry
	if c.Registry == nil {
		c.Registry = prometheus.NewRegistry()
	}
	return nil
}

func (c *Container) openEvents(ctx context.Context) error {
	cfg := c.Config
	c.Bus = event.NewInMemoryEventBus(c.Logger)
	if cfg.Kafka.Enabled {
		fwd, err := event.NewKafkaForwarder(event.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
			Topic:    cfg.Kafka.Topic,
		}, c.Logger)
		if err != nil {
			return err
		}
		c.Kafka = fwd
		c.Bus.Subscribe(fwd)
		c.onClose(func(context.Context) error {
			fwd.Close()
			return nil
		})
	}
	if err := c.Bus.Start(ctx); err != nil {
		return err
	}
	// Registered after the forwarder so the queue drains before it closes.
	c.onClose(c.Bus.Stop)
	return nil
}

func (c *Container) buildServices(ctx context.Context, o options) error {
	cfg := c.Config
	log := c.Logger

	var metrics *telemetry.PipelineMetrics
	if o.meter != nil {
		m, err := telemetry.NewPipelineMetrics(o.meter)
		if err != nil {
			return fmt.Errorf("pipeline metrics: %w", err)
		}
		metrics = m
	}

	c.LinkedIn = linkedin.NewClient(cfg.LinkedIn,
		linkedin.WithCache(c.Cache),
		linkedin.WithMetrics(linkedin.NewMetrics(c.Registry)),
		linkedin.WithLogger(log.Named("linkedin")),
	)

	resolver, err := urn.NewResolver(
		urn.WithLookup(c.LinkedIn),
		urn.WithCache(c.Cache, urn.DefaultCacheTTL),
		urn.WithLogger(log.Named("urn")),
	)
	if err != nil {
		return fmt.Errorf("urn resolver: %w", err)
	}
	c.Resolver = resolver

	scraperOpts := []scraper.Option{
		scraper.WithRunStore(c.Repos.ScraperRuns),
		scraper.WithLogger(log.Named("scraper")),
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3DatasetArchive(ctx, &cfg.Storage, storage.WithLogger(log.Named("archive")))
		if err != nil {
			return err
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return err
		}
		scraperOpts = append(scraperOpts, scraper.WithArchive(archive))
	}
	c.Scraper = scraper.NewClient(cfg.Apify, scraperOpts...)

	policy, err := analytics.ParsePrimaryLinkPolicy(cfg.Correlation.PrimaryLinkPolicy)
	if err != nil {
		return err
	}
	c.Linker = campaign.NewLinker(c.Repos.Posts, c.Repos.PostCampaigns, c.Repos.Campaigns,
		campaign.WithCreativeSource(c.LinkedIn),
		campaign.WithPrimaryLinkPolicy(policy),
		campaign.WithEventPublisher(c.Bus),
		campaign.WithLinkerLogger(log.Named("linker")),
	)
	c.Syncer = campaign.NewSyncer(c.LinkedIn, c.Repos.Posts, c.Repos.Campaigns, c.Linker, log.Named("sync")).
		WithPerformance(c.LinkedIn, c.Repos.Analytics)
	c.Targeting = campaign.NewTargetingResolver(c.Repos.Campaigns, c.LinkedIn, cfg.LinkedIn.AdAccountID, c.Resolver, log.Named("targeting"))
	c.Demographics = campaign.NewDemographicsService(c.Repos.Analytics)

	c.Correlator = correlation.NewCorrelator(c.LinkedIn, cfg.Correlation,
		correlation.WithEngagements(c.Repos.Engagements),
		correlation.WithAnalytics(c.Repos.Analytics),
		correlation.WithResolver(c.Resolver),
		correlation.WithMetrics(metrics),
		correlation.WithLogger(log.Named("correlation")),
	)

	c.Enrichment = enrichment.NewService(c.Repos.Persons, c.Scraper,
		enrichment.WithBatchSize(cfg.Enrichment.BatchSize),
		enrichment.WithLogger(log.Named("enrichment")),
	)

	reconcilerOpts := []reconciliation.Option{
		reconciliation.WithOrphanLinker(reconciliation.NewStoreOrphanLinker(c.Repos.Persons, c.Repos.Engagements, log)),
		reconciliation.WithEventPublisher(c.Bus),
		reconciliation.WithMetrics(metrics),
		reconciliation.WithLogger(log.Named("reconciliation")),
	}
	if cfg.Enrichment.Enabled {
		reconcilerOpts = append(reconcilerOpts, reconciliation.WithEnrichmentTrigger(c.Enrichment))
	}
	c.Reconciler = reconciliation.NewReconciler(c.Repos.Posts, c.Repos.Engagements, cfg.Reconciliation, reconcilerOpts...)

	generator := insight.NewGenerator(cfg.Insight, c.Resolver, log.Named("insight"))
	c.Insights = insight.NewService(c.Repos.Posts, c.Repos.PostCampaigns, c.Repos.Campaigns, c.Repos.Engagements, c.Repos.Analytics, generator)

	c.Tracker = analysis.NewTracker(c.Cache, log)
	c.Orchestrator = analysis.NewOrchestrator(analysis.Dependencies{
		Posts:       c.Repos.Posts,
		Engagements: c.Repos.Engagements,
		Persons:     c.Repos.Persons,
		Reports:     c.Repos.Analytics,
		Analyses:    c.Repos.Analyses,
		Collector:   c.Scraper,
		Platform:    c.LinkedIn,
		Linker:      c.Linker,
		Correlator:  c.Correlator,
		Reconciler:  c.Reconciler,
		Insights:    generator,
		Tracker:     c.Tracker,
	}, cfg.Analysis,
		analysis.WithAccountID(cfg.LinkedIn.AdAccountID),
		analysis.WithEventPublisher(c.Bus),
		analysis.WithMetrics(metrics),
		analysis.WithLogger(log.Named("analysis")),
	)
	return nil
}

// Jobs returns the recurring jobs enabled by configuration.
func (c *Container) Jobs() []scheduler.Job {
	cfg := c.Config
	var jobs []scheduler.Job
	if cfg.Enrichment.Enabled {
		jobs = append(jobs, c.Enrichment.Jobs(enrichment.JobConfig{
			ProcessSchedule:   cfg.Enrichment.ProcessSchedule,
			AutoQueueSchedule: cfg.Enrichment.AutoQueueSchedule,
			AutoQueueLimit:    cfg.Enrichment.AutoQueueLimit,
		}, c.Cache)...)
	}
	if cfg.Enrichment.ResyncSchedule != "" && cfg.LinkedIn.AdAccountID != "" {
		jobs = append(jobs, c.Syncer.ResyncJob(cfg.Enrichment.ResyncSchedule, c.LinkedIn, cfg.LinkedIn.AdAccountID, c.Cache))
	}
	return jobs
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}
