package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campaignlens/backend/internal/bootstrap"
	"github.com/campaignlens/backend/internal/infrastructure/auth"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/campaignlens/backend/internal/infrastructure/scheduler"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/campaignlens/backend/internal/interfaces/http/handler"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/campaignlens/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// OTLP log export tees the zap core once the provider exists.
	logsCfg := telCfg
	logsCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, logsCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logsCfg.Enabled {
		log, err = logger.New(logCfg, logProvider.Core(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting campaignlens",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, cfg.Telemetry.MetricsInterval, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := bootstrap.New(ctx, cfg, log,
		bootstrap.WithMeter(meterProvider.Meter("campaignlens")),
		bootstrap.WithRegistry(registry),
	)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	log.Info("Services initialized", zap.String("database", app.DB.Driver()))

	sched := scheduler.NewScheduler(scheduler.DefaultConfig(), log)
	for _, job := range app.Jobs() {
		if err := sched.Register(job); err != nil {
			log.Fatal("Failed to register job", zap.String("job", job.Name), zap.Error(err))
		}
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	var (
		jwtService *auth.JWTService
		blacklist  *auth.TokenBlacklist
	)
	if cfg.Auth.Enabled {
		jwtService, err = auth.NewJWTService(cfg.Auth)
		if err != nil {
			log.Fatal("Failed to initialize JWT service", zap.Error(err))
		}
		blacklist = auth.NewTokenBlacklist(app.Cache)
	}

	middleware.SetupValidator()

	analysisHandler := handler.NewAnalysisHandler(app.Orchestrator, log)
	correlationHandler := handler.NewCorrelationHandler(
		app.Correlator, app.Repos.Posts, app.Repos.Campaigns, app.LinkedIn, app.Linker, cfg.LinkedIn.AdAccountID,
	)
	campaignHandler := handler.NewCampaignHandler(handler.CampaignHandlerDeps{
		Linker:       app.Linker,
		Syncer:       app.Syncer,
		Campaigns:    app.Repos.Campaigns,
		Platform:     app.LinkedIn,
		Targeting:    app.Targeting,
		Demographics: app.Demographics,
		AccountID:    cfg.LinkedIn.AdAccountID,
	})
	handlers := router.Handlers{
		System:         handler.NewSystemHandler(cfg.App.Name, version, healthChecks(app)),
		Analysis:       analysisHandler,
		Correlation:    correlationHandler,
		Reconciliation: handler.NewReconciliationHandler(app.Reconciler, app.Repos.Posts, app.Scraper),
		Campaign:       campaignHandler,
		Insight:        handler.NewInsightHandler(app.Insights),
		Enrichment:     handler.NewEnrichmentHandler(app.Enrichment),
		LinkedIn:       handler.NewLinkedInHandler(app.LinkedIn, version),
	}

	engine := router.NewEngine(router.EngineConfig{
		Logger:           log,
		ServiceName:      cfg.Telemetry.ServiceName,
		HTTP:             cfg.HTTP,
		JWT:              jwtService,
		TokenBlacklist:   blacklist,
		MeterProvider:    meterProvider,
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profiler.IsEnabled(),
	}, handlers, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := analysisHandler.Wait(shutdownCtx); err != nil {
		log.Warn("Background analyses still running at shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler stop failed", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.String("provider", name), zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// healthChecks probes the stores the API depends on.
func healthChecks(app *bootstrap.Container) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": app.DB.Ping,
		"cache": func(ctx context.Context) error {
			return app.Cache.Set(ctx, "health:ping", []byte(time.Now().UTC().Format(time.RFC3339)), time.Minute)
		},
	}
	if app.Kafka != nil {
		checks["kafka"] = app.Kafka.Ping
	}
	return checks
}
