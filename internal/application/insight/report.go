package insight

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Summary statuses.
const (
	StatusExcellent        = "excellent"
	StatusGood             = "good"
	StatusNeedsImprovement = "needs_improvement"
)

// CompanyHit is an engaged company that matched a targeted company.
type CompanyHit struct {
	Company     string `json:"company"`
	Engagements int    `json:"engagements"`
}

// CompanyPenetration measures how many targeted companies engaged.
type CompanyPenetration struct {
	TargetCompanies   int          `json:"target_companies"`
	CompaniesHit      int          `json:"companies_hit"`
	HitRate           float64      `json:"hit_rate"`
	ConcentrationRate float64      `json:"concentration_rate"`
	TopPerformers     []CompanyHit `json:"top_performers"`
}

// TitlePenetration measures how many engagers hold a targeted title.
type TitlePenetration struct {
	TargetTitles  int            `json:"target_titles"`
	TitlesMatched int            `json:"titles_matched"`
	HitRate       float64        `json:"hit_rate"`
	TotalMatches  int            `json:"total_matches"`
	MatchDetails  map[string]int `json:"match_details"`
}

// TargetingEffectiveness is the share of the declared audience that engaged.
type TargetingEffectiveness struct {
	OverallScore   float64             `json:"overall_score"`
	QualityRatio   float64             `json:"quality_ratio"`
	Companies      *CompanyPenetration `json:"companies,omitempty"`
	Titles         *TitlePenetration   `json:"titles,omitempty"`
	Interpretation string              `json:"interpretation,omitempty"`
	Message        string              `json:"message,omitempty"`
}

// QualityComponents are the weighted parts of QualityScore.
type QualityComponents struct {
	DataQuality        float64 `json:"data_quality"`
	Diversity          float64 `json:"diversity"`
	HighValueRate      float64 `json:"high_value_rate"`
	TargetingAlignment float64 `json:"targeting_alignment"`
}

// QualityScore rates the engagement on a 0 to 10 scale.
type QualityScore struct {
	Overall        float64           `json:"overall"`
	Components     QualityComponents `json:"components"`
	Interpretation string            `json:"interpretation"`
}

// CostEfficiency relates campaign spend to engagements.
type CostEfficiency struct {
	TotalSpend               decimal.Decimal `json:"total_spend"`
	CostPerEngagement        decimal.Decimal `json:"cost_per_engagement"`
	CostPerQualityEngagement decimal.Decimal `json:"cost_per_quality_engagement"`
	CostPerTargetHit         decimal.Decimal `json:"cost_per_target_hit"`
	BenchmarkRatio           float64         `json:"benchmark_ratio"`
	Performance              string          `json:"performance,omitempty"`
	Interpretation           string          `json:"interpretation,omitempty"`
	Message                  string          `json:"message,omitempty"`
}

// CompanyStats aggregates the engagements of one company.
type CompanyStats struct {
	Name                 string  `json:"name"`
	Engagements          int     `json:"engagements"`
	UniquePeople         int     `json:"unique_people"`
	HighValueEngagements int     `json:"high_value_engagements"`
	PenetrationRate      float64 `json:"penetration_rate"`
	TitleDiversity       int     `json:"title_diversity"`
	QualityRate          float64 `json:"quality_rate"`
	IsTargetCompany      bool    `json:"is_target_company"`
}

// CompanyPerformance ranks engaged companies by quality over volume.
type CompanyPerformance struct {
	TotalCompanies     int            `json:"total_companies"`
	TopPerformers      []CompanyStats `json:"top_performers"`
	Insights           []string       `json:"insights"`
	QualityCompanies   []CompanyStats `json:"quality_companies"`
	PenetrationLeaders []CompanyStats `json:"penetration_leaders"`
}

// PersonStats aggregates the engagements of one person.
type PersonStats struct {
	PersonID        uuid.UUID `json:"person_id"`
	Name            string    `json:"name"`
	LinkedInURL     string    `json:"linkedin_url"`
	Title           string    `json:"title,omitempty"`
	Company         string    `json:"company,omitempty"`
	EngagementScore float64   `json:"engagement_score"`
	Engagements     int       `json:"engagements"`
	ReactionTypes   []string  `json:"reaction_types"`
	LastEngagement  time.Time `json:"last_engagement"`
	Influence       int       `json:"influence"`
}

// PeopleInsights ranks the individual engagers.
type PeopleInsights struct {
	TotalPeople    int           `json:"total_people"`
	KeyInfluencers []PersonStats `json:"key_influencers"`
	HighEngagers   []PersonStats `json:"high_engagers"`
	TopPeople      []PersonStats `json:"top_people"`
}

// CampaignIntelligence summarizes reach and spend of the linked campaigns.
type CampaignIntelligence struct {
	CampaignCount              int             `json:"campaign_count"`
	TotalSpend                 decimal.Decimal `json:"total_spend"`
	ReachEstimate              int64           `json:"reach_estimate"`
	CostPerImpression          decimal.Decimal `json:"cost_per_impression"`
	CostPerImpressionBenchmark float64         `json:"cost_per_impression_benchmark"`
	ImpressionToEngagementRate float64         `json:"impression_to_engagement_rate"`
	TargetingEffectiveness     float64         `json:"targeting_effectiveness"`
	TargetingMessage           string          `json:"targeting_message,omitempty"`
}

// Recommendation is a suggested optimization.
type Recommendation struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// BenchmarkComparison compares an actual rate to its benchmark.
type BenchmarkComparison struct {
	Actual      float64 `json:"actual"`
	Benchmark   float64 `json:"benchmark"`
	Performance string  `json:"performance"`
	Ratio       float64 `json:"ratio"`
}

// Benchmarks holds the benchmark comparisons that could be computed.
type Benchmarks struct {
	EngagementRate         *BenchmarkComparison `json:"engagement_rate,omitempty"`
	TargetingEffectiveness BenchmarkComparison  `json:"targeting_effectiveness"`
}

// KeyMetrics are the headline numbers of the executive summary.
type KeyMetrics struct {
	TotalEngagements       int     `json:"total_engagements"`
	TargetingEffectiveness int     `json:"targeting_effectiveness"`
	QualityScore           float64 `json:"quality_score"`
	TopCompanies           int     `json:"top_companies"`
}

// ExecutiveSummary condenses the report.
type ExecutiveSummary struct {
	Status      string          `json:"status"`
	KeyMetrics  KeyMetrics      `json:"key_metrics"`
	Headline    string          `json:"headline"`
	KeyInsights []string        `json:"key_insights"`
	TopPriority *Recommendation `json:"top_priority,omitempty"`
}

// Report is the full set of business insights for one post.
type Report struct {
	PostID          uuid.UUID              `json:"post_id"`
	PostURL         string                 `json:"post_url"`
	Targeting       TargetingEffectiveness `json:"targeting_effectiveness"`
	Quality         QualityScore           `json:"quality_score"`
	Cost            CostEfficiency         `json:"cost_efficiency"`
	Companies       CompanyPerformance     `json:"company_performance"`
	People          PeopleInsights         `json:"people_insights"`
	Campaigns       CampaignIntelligence   `json:"campaign_intelligence"`
	Recommendations []Recommendation       `json:"recommendations"`
	Benchmarks      Benchmarks             `json:"benchmark_comparisons"`
	Summary         ExecutiveSummary       `json:"executive_summary"`
	GeneratedAt     time.Time              `json:"generated_at"`
}
