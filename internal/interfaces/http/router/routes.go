package router

import (
	"net/http"

	"github.com/campaignlens/backend/internal/infrastructure/auth"
	"github.com/campaignlens/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers are the HTTP handlers of the API. A nil handler leaves its routes
// unregistered.
type Handlers struct {
	System         *handler.SystemHandler
	Analysis       *handler.AnalysisHandler
	Correlation    *handler.CorrelationHandler
	Reconciliation *handler.ReconciliationHandler
	Campaign       *handler.CampaignHandler
	Insight        *handler.InsightHandler
	Enrichment     *handler.EnrichmentHandler
	LinkedIn       *handler.LinkedInHandler
}

// ScopeGuard returns middleware that admits requests whose token carries
// scope. A nil ScopeGuard admits everything.
type ScopeGuard func(scope string) gin.HandlerFunc

func (g ScopeGuard) require(scope string) gin.HandlerFunc {
	if g == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return g(scope)
}

// APIGroups builds the /api/v1 route groups.
func APIGroups(h Handlers, guard ScopeGuard) []RouteRegistrar {
	read := guard.require(auth.ScopeRead)
	analyze := guard.require(auth.ScopeAnalyze)
	admin := guard.require(auth.ScopeAdmin)

	var groups []RouteRegistrar

	if h.Analysis != nil {
		groups = append(groups, NewDomainGroup("analysis", "/analyses").
			POST("", analyze, h.Analysis.Analyze).
			GET("/:id/status", read, h.Analysis.Status))
	}

	if h.Correlation != nil {
		groups = append(groups, NewDomainGroup("correlation", "/correlations").
			POST("", analyze, h.Correlation.Correlate))
	}

	posts := NewDomainGroup("posts", "/posts")
	if h.Reconciliation != nil {
		posts.POST("/:id/reconcile", analyze, h.Reconciliation.Reconcile)
		groups = append(groups, NewDomainGroup("reconciliation", "/reconciliations").
			POST("/batch", analyze, h.Reconciliation.ReconcileBatch))
	}
	if h.Insight != nil {
		posts.GET("/:id/insights", read, h.Insight.ForPost)
	}
	if h.Campaign != nil {
		posts.GET("/:id/campaigns", read, h.Campaign.PostCampaigns)
		posts.POST("/:id/campaigns", analyze, h.Campaign.LinkPost)
		posts.DELETE("/:id/campaigns/:campaignId", admin, h.Campaign.UnlinkPost)

		groups = append(groups, NewDomainGroup("campaigns", "/campaigns").
			GET("/search", read, h.Campaign.Search).
			GET("/demographics", read, h.Campaign.Demographics).
			GET("/:id/posts", read, h.Campaign.Posts).
			GET("/:id/targeting", read, h.Campaign.Targeting).
			POST("/:id/sync", analyze, h.Campaign.Sync))
	}
	groups = append(groups, posts)

	if h.Enrichment != nil {
		groups = append(groups, NewDomainGroup("enrichment", "/enrichment").
			GET("/stats", read, h.Enrichment.Stats).
			POST("/queue", analyze, h.Enrichment.Queue).
			POST("/process", admin, h.Enrichment.Process))
	}

	if h.System != nil {
		groups = append(groups, NewDomainGroup("system", "/system").
			GET("/info", read, h.System.GetSystemInfo).
			GET("/ping", h.System.Ping))
	}

	return groups
}

// RootGroups builds the unversioned routes: liveness, metrics and the
// LinkedIn proxy. metrics may be nil.
func RootGroups(h Handlers, guard ScopeGuard, metrics http.Handler) []RouteRegistrar {
	root := NewDomainGroup("root", "")
	if h.System != nil {
		root.GET("/health", h.System.Health)
	}
	if metrics != nil {
		root.GET("/metrics", gin.WrapH(metrics))
	}
	groups := []RouteRegistrar{root}

	if h.LinkedIn != nil {
		read := guard.require(auth.ScopeRead)
		groups = append(groups, NewDomainGroup("linkedin", "/api/linkedin").
			GET("/health", h.LinkedIn.Health).
			GET("/test", read, h.LinkedIn.Test).
			GET("/accounts", read, h.LinkedIn.Accounts).
			GET("/accounts/:accountId/campaigns", read, h.LinkedIn.AccountCampaigns).
			GET("/accounts/:accountId/campaign-groups", read, h.LinkedIn.CampaignGroups).
			GET("/accounts/:accountId/audience-templates", read, h.LinkedIn.AudienceTemplates).
			GET("/targeting/facets", read, h.LinkedIn.TargetingFacets).
			GET("/targeting/entities", read, h.LinkedIn.TargetingEntities).
			Any("/proxy/*path", guard.require(auth.ScopeAdmin), h.LinkedIn.Proxy))
	}
	return groups
}
