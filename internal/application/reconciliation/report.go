package reconciliation

import (
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/google/uuid"
)

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Quality status of a post's engagement data.
const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusFair      = "fair"
	StatusPoor      = "poor"
)

// Issue types reported in Analysis.Issues.
const (
	IssueOrphanedEngagements = "orphaned_engagements"
	IssueDuplicates          = "duplicate_engagements"
	IssueLowQualityPersons   = "low_quality_persons"
)

// Recommendation types.
const (
	RecommendFixOrphans    = "fix_orphaned_records"
	RecommendRemoveDups    = "remove_duplicates"
	RecommendEnrichPersons = "enrich_person_data"
	RecommendResyncScraper = "sync_scraper_data"
)

// candidatePriority is the enrichment priority given to persons flagged
// during validation.
const candidatePriority = 5

// Metrics counts what validation found for one post.
type Metrics struct {
	TotalEngagements     int `json:"total_engagements"`
	ValidEngagements     int `json:"valid_engagements"`
	OrphanedEngagements  int `json:"orphaned_engagements"`
	DuplicateEngagements int `json:"duplicate_engagements"`
	LowQualityPersons    int `json:"low_quality_persons"`
	MissingPersonData    int `json:"missing_person_data"`
	EnrichmentCandidates int `json:"enrichment_candidates"`
}

// Issue is one data quality problem.
type Issue struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Count       int    `json:"count"`
	Description string `json:"description"`
}

// EngagementAnalysis describes the engagement rows of a post.
type EngagementAnalysis struct {
	WithPersonData    int            `json:"with_person_data"`
	WithoutPersonData int            `json:"without_person_data"`
	Recent            int            `json:"recent"`
	Stale             int            `json:"stale"`
	ByReactionType    map[string]int `json:"by_reaction_type"`
}

// EnrichmentCandidate is a low quality person with enough identity to enrich.
type EnrichmentCandidate struct {
	PersonID      uuid.UUID `json:"person_id"`
	Name          string    `json:"name"`
	LinkedInURL   string    `json:"linkedin_url"`
	MissingFields []string  `json:"missing_fields"`
	QualityScore  float64   `json:"quality_score"`
}

// PersonAnalysis buckets the engaged persons by profile completeness.
type PersonAnalysis struct {
	HighQuality          int                   `json:"high_quality"`
	MediumQuality        int                   `json:"medium_quality"`
	LowQuality           int                   `json:"low_quality"`
	MissingFields        map[string]int        `json:"missing_fields"`
	EnrichmentCandidates []EnrichmentCandidate `json:"enrichment_candidates"`
}

// DuplicateGroup is a set of engagements by the same profile on one post.
type DuplicateGroup struct {
	ProfileKey       string      `json:"profile_key"`
	KeepID           uuid.UUID   `json:"keep_id"`
	KeepCompleteness float64     `json:"keep_completeness"`
	RemoveIDs        []uuid.UUID `json:"remove_ids"`
}

// DuplicateAnalysis lists the duplicate clusters of a post.
type DuplicateAnalysis struct {
	Groups          []DuplicateGroup `json:"groups"`
	TotalDuplicates int              `json:"total_duplicates"`
}

// RemoveIDs returns every engagement id marked for removal.
func (d DuplicateAnalysis) RemoveIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, d.TotalDuplicates)
	for _, g := range d.Groups {
		ids = append(ids, g.RemoveIDs...)
	}
	return ids
}

// ExtraRecord is a persisted engagement the scraper did not report.
type ExtraRecord struct {
	EngagementID uuid.UUID `json:"engagement_id"`
	ProfileURL   string    `json:"profile_url"`
}

// SourceComparison partitions scraper items and persisted engagements by
// profile URL. Every scraper item is either matched or missing; every
// persisted engagement is either matched or extra.
type SourceComparison struct {
	ScraperCount         int                         `json:"scraper_count"`
	DatabaseCount        int                         `json:"database_count"`
	Discrepancy          int                         `json:"discrepancy"`
	MatchedCount         int                         `json:"matched_count"`
	MatchedDatabaseCount int                         `json:"matched_database_count"`
	MissingInDatabase    []analytics.ScrapedReaction `json:"missing_in_database"`
	ExtraInDatabase      []ExtraRecord               `json:"extra_in_database"`
}

// Analysis is the full diagnosis of a post's engagement data.
type Analysis struct {
	Issues      []Issue            `json:"issues"`
	Engagements EngagementAnalysis `json:"engagements"`
	Persons     PersonAnalysis     `json:"persons"`
	Duplicates  DuplicateAnalysis  `json:"duplicates"`
	Comparison  *SourceComparison  `json:"comparison,omitempty"`
}

// Cleanup reports what the cleanup step changed.
type Cleanup struct {
	DryRun            bool     `json:"dry_run"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	OrphansLinked     int      `json:"orphans_linked"`
	PersonsQueued     int      `json:"persons_queued"`
	Errors            []string `json:"errors,omitempty"`
}

// Recommendation is a follow-up action.
type Recommendation struct {
	Priority    Priority `json:"priority"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
}

// Summary is the headline quality verdict.
type Summary struct {
	DataQualityScore int    `json:"data_quality_score"`
	TotalIssues      int    `json:"total_issues"`
	Status           string `json:"status"`
	Message          string `json:"message"`
}

// Report is the outcome of validating one post.
type Report struct {
	PostID          uuid.UUID        `json:"post_id"`
	Metrics         Metrics          `json:"metrics"`
	Analysis        Analysis         `json:"analysis"`
	Cleanup         Cleanup          `json:"cleanup"`
	Recommendations []Recommendation `json:"recommendations"`
	Summary         Summary          `json:"summary"`
	ValidatedAt     time.Time        `json:"validated_at"`
}

// BatchItem is the outcome for one post of a batch.
type BatchItem struct {
	PostID uuid.UUID `json:"post_id"`
	Report *Report   `json:"report,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// BatchSummary aggregates a batch.
type BatchSummary struct {
	PostsAnalyzed       int      `json:"posts_analyzed"`
	SuccessfulAnalyses  int      `json:"successful_analyses"`
	TotalIssuesFound    int      `json:"total_issues_found"`
	AverageQualityScore int      `json:"average_quality_score"`
	RecommendedActions  []string `json:"recommended_actions"`
}

// BatchReport is the outcome of ValidateBatch.
type BatchReport struct {
	Items   []BatchItem  `json:"items"`
	Summary BatchSummary `json:"summary"`
}
