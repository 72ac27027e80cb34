package router

import (
	"net/http"

	"github.com/campaignlens/backend/internal/infrastructure/auth"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineConfig configures the middleware chain of the API engine.
type EngineConfig struct {
	Logger      *zap.Logger
	ServiceName string
	HTTP        config.HTTPConfig

	// JWT nil serves every route without authentication.
	JWT            *auth.JWTService
	TokenBlacklist *auth.TokenBlacklist

	MeterProvider    *telemetry.MeterProvider
	TracingEnabled   bool
	ProfilingEnabled bool
}

// scopeGuard enforces token scopes when authentication is on.
func (cfg EngineConfig) scopeGuard() ScopeGuard {
	if cfg.JWT == nil {
		return nil
	}
	return middleware.RequireScope
}

// NewEngine builds the gin engine with the middleware chain and every route
// of h. metrics, when set, is served on /metrics.
func NewEngine(cfg EngineConfig, h Handlers, metrics http.Handler) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = middleware.DefaultTracingConfig().ServiceName
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log, "/health", "/metrics"))
	engine.Use(middleware.Secure(cfg.HTTP.HSTSMaxAge))
	engine.Use(middleware.CORS(cfg.HTTP.CORSAllowOrigins))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: serviceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: cfg.MeterProvider,
		ServiceName:   serviceName,
		Enabled:       cfg.MeterProvider.IsEnabled(),
	}))
	if cfg.ProfilingEnabled {
		engine.Use(middleware.Profiling())
	}

	engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))

	if cfg.JWT != nil {
		jwtConfig := middleware.DefaultJWTConfig(cfg.JWT)
		jwtConfig.TokenBlacklist = cfg.TokenBlacklist
		jwtConfig.Logger = log
		engine.Use(middleware.JWTAuthMiddleware(jwtConfig))
		engine.Use(middleware.TracingAttributeInjector())
	} else {
		log.Warn("API authentication is disabled")
	}
	// After authentication so limits apply per token subject.
	if cfg.HTTP.RateLimitRequests > 0 {
		engine.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
	}

	guard := cfg.scopeGuard()
	r := NewRouter(engine, WithAPIVersion("v1"))
	r.RegisterRoot(RootGroups(h, guard, metrics)...)
	r.Register(APIGroups(h, guard)...)
	r.Setup()

	return engine
}
