package dto

import "time"

// AnalyzePostRequest starts a post analysis
type AnalyzePostRequest struct {
	PostURL      string `json:"post_url" binding:"required,url,linkedin_post"`
	ForceRefresh bool   `json:"force_refresh"`
	// Wait runs the analysis within the request instead of in the background.
	Wait bool `json:"wait"`
}

// AnalysisAccepted is returned when an analysis runs in the background
type AnalysisAccepted struct {
	AnalysisID string `json:"analysis_id"`
	StatusURL  string `json:"status_url"`
}

// CorrelatePostRequest correlates one post against the account's campaigns
type CorrelatePostRequest struct {
	PostURL     string     `json:"post_url" binding:"required,url,linkedin_post"`
	PostedAt    *time.Time `json:"posted_at"`
	Content     string     `json:"content" binding:"max=10000"`
	CampaignIDs []string   `json:"campaign_ids" binding:"omitempty,max=200,dive,numeric"`
	// Link persists the best match as post to campaign links.
	Link bool `json:"link"`
}

// ReconcileRequest controls a single-post validation
type ReconcileRequest struct {
	DryRun bool `json:"dry_run"`
	// CompareLatestRun compares stored engagements with the latest scraper
	// dataset of the post.
	CompareLatestRun bool `json:"compare_latest_run"`
}

// BatchReconcileRequest validates several posts
type BatchReconcileRequest struct {
	PostIDs []string `json:"post_ids" binding:"required,min=1,max=100,dive,uuid"`
	DryRun  bool     `json:"dry_run"`
}

// LinkCampaignsRequest links a post to campaigns
type LinkCampaignsRequest struct {
	CampaignIDs     []string `json:"campaign_ids" binding:"required,min=1,max=50,dive,numeric"`
	AssociationType string   `json:"association_type" binding:"omitempty,oneof=manual auto"`
}

// LinkCampaignsResponse reports how many links were written
type LinkCampaignsResponse struct {
	PostID string `json:"post_id"`
	Linked int    `json:"linked"`
}

// QueueEnrichmentRequest queues persons for profile enrichment
type QueueEnrichmentRequest struct {
	PersonIDs []string `json:"person_ids" binding:"omitempty,max=500,dive,uuid"`
	Priority  int      `json:"priority" binding:"omitempty,min=1,max=10"`
	// Auto queues notable and senior persons instead of explicit ids.
	Auto  bool `json:"auto"`
	Limit int  `json:"limit" binding:"omitempty,min=1,max=1000"`
}

// QueueEnrichmentResponse reports how many persons were queued
type QueueEnrichmentResponse struct {
	Queued int `json:"queued"`
}

// TargetingEntitiesQuery searches LinkedIn targeting entities
type TargetingEntitiesQuery struct {
	FacetType string `form:"facetType" binding:"required"`
	Query     string `form:"q" binding:"max=200"`
}

// HealthResponse is the liveness answer
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}
