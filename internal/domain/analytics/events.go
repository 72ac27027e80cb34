package analytics

import "github.com/campaignlens/backend/internal/domain/shared"

// Aggregate type names carried on events.
const (
	AggregateTypePost   = "Post"
	AggregateTypePerson = "Person"
)

// Event type names.
const (
	EventTypeAnalysisCompleted    = "analysis.completed"
	EventTypeAnalysisFailed       = "analysis.failed"
	EventTypeCleanupExecuted      = "reconciliation.cleanup_executed"
	EventTypeEnrichmentCandidates = "enrichment.candidates_found"
	EventTypePostCampaignLinked   = "post.campaign_linked"
)

// AnalysisCompletedEvent is published when a post analysis finishes.
type AnalysisCompletedEvent struct {
	shared.BaseDomainEvent
	PostURL         string     `json:"post_url"`
	Status          string     `json:"status"`
	MatchQuality    Confidence `json:"match_quality"`
	CampaignIDs     []string   `json:"campaign_ids"`
	EngagementCount int        `json:"engagement_count"`
	Warnings        []string   `json:"warnings,omitempty"`
}

// NewAnalysisCompletedEvent creates an AnalysisCompletedEvent.
func NewAnalysisCompletedEvent(postURL, status string, quality Confidence, campaignIDs []string, engagements int, warnings []string) *AnalysisCompletedEvent {
	return &AnalysisCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAnalysisCompleted, AggregateTypePost, postURL),
		PostURL:         postURL,
		Status:          status,
		MatchQuality:    quality,
		CampaignIDs:     campaignIDs,
		EngagementCount: engagements,
		Warnings:        warnings,
	}
}

// AnalysisFailedEvent is published when an analysis falls back.
type AnalysisFailedEvent struct {
	shared.BaseDomainEvent
	PostURL string `json:"post_url"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

// NewAnalysisFailedEvent creates an AnalysisFailedEvent.
func NewAnalysisFailedEvent(postURL, status, reason string) *AnalysisFailedEvent {
	return &AnalysisFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAnalysisFailed, AggregateTypePost, postURL),
		PostURL:         postURL,
		Status:          status,
		Reason:          reason,
	}
}

// CleanupExecutedEvent is published after the reconciler removed records.
type CleanupExecutedEvent struct {
	shared.BaseDomainEvent
	PostID            string `json:"post_id"`
	DuplicatesRemoved int    `json:"duplicates_removed"`
	OrphansLinked     int    `json:"orphans_linked"`
}

// NewCleanupExecutedEvent creates a CleanupExecutedEvent.
func NewCleanupExecutedEvent(postID string, removed, linked int) *CleanupExecutedEvent {
	return &CleanupExecutedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeCleanupExecuted, AggregateTypePost, postID),
		PostID:            postID,
		DuplicatesRemoved: removed,
		OrphansLinked:     linked,
	}
}

// EnrichmentCandidatesEvent carries persons that need profile enrichment.
type EnrichmentCandidatesEvent struct {
	shared.BaseDomainEvent
	PostID    string   `json:"post_id"`
	PersonIDs []string `json:"person_ids"`
	Priority  int      `json:"priority"`
}

// NewEnrichmentCandidatesEvent creates an EnrichmentCandidatesEvent.
func NewEnrichmentCandidatesEvent(postID string, personIDs []string, priority int) *EnrichmentCandidatesEvent {
	return &EnrichmentCandidatesEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEnrichmentCandidates, AggregateTypePost, postID),
		PostID:          postID,
		PersonIDs:       personIDs,
		Priority:        priority,
	}
}

// PostCampaignLinkedEvent is published when a post gains a campaign link.
type PostCampaignLinkedEvent struct {
	shared.BaseDomainEvent
	PostID          string          `json:"post_id"`
	CampaignID      string          `json:"campaign_id"`
	AssociationType AssociationType `json:"association_type"`
	Primary         bool            `json:"primary"`
}

// NewPostCampaignLinkedEvent creates a PostCampaignLinkedEvent.
func NewPostCampaignLinkedEvent(postID, campaignID string, assoc AssociationType, primary bool) *PostCampaignLinkedEvent {
	return &PostCampaignLinkedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePostCampaignLinked, AggregateTypePost, postID),
		PostID:          postID,
		CampaignID:      campaignID,
		AssociationType: assoc,
		Primary:         primary,
	}
}
