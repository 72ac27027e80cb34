package handler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/linkedin"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/campaignlens/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// maxProxyBody bounds the body forwarded to LinkedIn by the passthrough.
const maxProxyBody = 1 << 20

// LinkedInAPI is the subset of the marketing client the proxy routes expose.
type LinkedInAPI interface {
	GetAdAccounts(ctx context.Context) ([]linkedin.AdAccount, error)
	GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error)
	GetCampaignGroups(ctx context.Context, accountID string) ([]linkedin.CampaignGroup, error)
	GetAudienceTemplates(ctx context.Context, accountID string) ([]linkedin.AudienceTemplate, error)
	GetTargetingFacets(ctx context.Context) ([]linkedin.TargetingFacet, error)
	SearchTargetingEntities(ctx context.Context, facetType, query string) ([]linkedin.TargetingEntity, error)
	Proxy(ctx context.Context, method, path string, query url.Values, body []byte) (*linkedin.ProxyResponse, error)
	Health() linkedin.HealthStatus
}

// LinkedInHandler exposes the LinkedIn marketing API through the backend so
// the browser never holds the access token.
type LinkedInHandler struct {
	BaseHandler
	api     LinkedInAPI
	version string
}

// NewLinkedInHandler creates a LinkedInHandler
func NewLinkedInHandler(api LinkedInAPI, version string) *LinkedInHandler {
	return &LinkedInHandler{api: api, version: version}
}

// LinkedInHealth is the body of GET /api/linkedin/health.
type LinkedInHealth struct {
	Status    string                `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
	Version   string                `json:"version"`
	Client    linkedin.HealthStatus `json:"linkedin"`
}

// ConnectionTest is the body of GET /api/linkedin/test.
type ConnectionTest struct {
	Connected    bool                 `json:"connected"`
	AccountCount int                  `json:"account_count"`
	Accounts     []linkedin.AdAccount `json:"accounts"`
}

// Health handles GET /api/linkedin/health.
func (h *LinkedInHandler) Health(c *gin.Context) {
	status := h.api.Health()
	overall := "healthy"
	if status.CircuitState != "closed" {
		overall = "degraded"
	}
	h.Success(c, LinkedInHealth{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Client:    status,
	})
}

// Test handles GET /api/linkedin/test by listing the ad accounts the token
// can see.
func (h *LinkedInHandler) Test(c *gin.Context) {
	accounts, err := h.api.GetAdAccounts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ConnectionTest{
		Connected:    true,
		AccountCount: len(accounts),
		Accounts:     accounts,
	})
}

// Accounts handles GET /api/linkedin/accounts.
func (h *LinkedInHandler) Accounts(c *gin.Context) {
	accounts, err := h.api.GetAdAccounts(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, accounts)
}

// AccountCampaigns handles GET /api/linkedin/accounts/:accountId/campaigns.
func (h *LinkedInHandler) AccountCampaigns(c *gin.Context) {
	accountID, ok := h.accountParam(c)
	if !ok {
		return
	}
	campaigns, err := h.api.GetCampaigns(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, campaigns)
}

// CampaignGroups handles GET /api/linkedin/accounts/:accountId/campaign-groups.
func (h *LinkedInHandler) CampaignGroups(c *gin.Context) {
	accountID, ok := h.accountParam(c)
	if !ok {
		return
	}
	groups, err := h.api.GetCampaignGroups(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, groups)
}

// AudienceTemplates handles GET /api/linkedin/accounts/:accountId/audience-templates.
func (h *LinkedInHandler) AudienceTemplates(c *gin.Context) {
	accountID, ok := h.accountParam(c)
	if !ok {
		return
	}
	templates, err := h.api.GetAudienceTemplates(c.Request.Context(), accountID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, templates)
}

// TargetingFacets handles GET /api/linkedin/targeting/facets.
func (h *LinkedInHandler) TargetingFacets(c *gin.Context) {
	facets, err := h.api.GetTargetingFacets(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, facets)
}

// TargetingEntities handles GET /api/linkedin/targeting/entities?facetType=&q=.
func (h *LinkedInHandler) TargetingEntities(c *gin.Context) {
	var req dto.TargetingEntitiesQuery
	if !middleware.BindQuery(c, &req) {
		return
	}
	entities, err := h.api.SearchTargetingEntities(c.Request.Context(), req.FacetType, req.Query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entities)
}

// Proxy handles ANY /api/linkedin/proxy/*path. The upstream JSON is written
// back untouched.
func (h *LinkedInHandler) Proxy(c *gin.Context) {
	path := strings.TrimSpace(c.Param("path"))
	if path == "" || path == "/" {
		h.BadRequest(c, "Proxy path is required")
		return
	}
	if strings.Contains(path, "..") || strings.Contains(path, "://") {
		h.BadRequest(c, "Invalid proxy path")
		return
	}

	var body []byte
	if c.Request.Body != nil && c.Request.Method != http.MethodGet {
		data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody+1))
		if err != nil && !middleware.IsBodyTooLarge(err) {
			h.BadRequest(c, "Failed to read request body")
			return
		}
		if err != nil || len(data) > maxProxyBody {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body too large")
			return
		}
		body = data
	}

	resp, err := h.api.Proxy(c.Request.Context(), c.Request.Method, path, c.Request.URL.Query(), body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	payload := resp.Body
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *LinkedInHandler) accountParam(c *gin.Context) (string, bool) {
	accountID := strings.TrimSpace(c.Param("accountId"))
	if accountID == "" {
		h.BadRequest(c, "Account ID is required")
		return "", false
	}
	for _, r := range accountID {
		if r < '0' || r > '9' {
			h.BadRequest(c, "Account ID must be numeric")
			return "", false
		}
	}
	return accountID, true
}
