package analytics

// Strategy names a correlation signal.
type Strategy string

const (
	StrategyTiming      Strategy = "timing"
	StrategyContent     Strategy = "content"
	StrategyCreative    Strategy = "creative"
	StrategyAudience    Strategy = "audience"
	StrategyPerformance Strategy = "performance"
	StrategyError       Strategy = "error"
	StrategyNone        Strategy = "none"
	StrategyTimeBased   Strategy = "time_based"
)

// Confidence is the bucket a match score falls into.
type Confidence string

const (
	ConfidenceHigh         Confidence = "high"
	ConfidenceMedium       Confidence = "medium"
	ConfidenceLow          Confidence = "low"
	ConfidenceInsufficient Confidence = "insufficient"
	ConfidenceNone         Confidence = "none"
)

// ConfidenceThresholds are the lower bounds of the confidence buckets.
type ConfidenceThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultConfidenceThresholds returns the standard 0.85/0.65/0.45 buckets.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: 0.85, Medium: 0.65, Low: 0.45}
}

// Classify buckets a score.
func (t ConfidenceThresholds) Classify(score float64) Confidence {
	switch {
	case score >= t.High:
		return ConfidenceHigh
	case score >= t.Medium:
		return ConfidenceMedium
	case score >= t.Low:
		return ConfidenceLow
	default:
		return ConfidenceInsufficient
	}
}

// StrategyScores holds the five per-strategy sub-scores, each in [0,1].
type StrategyScores struct {
	Timing      float64 `json:"timing"`
	Content     float64 `json:"content"`
	Creative    float64 `json:"creative"`
	Audience    float64 `json:"audience"`
	Performance float64 `json:"performance"`
}

// Highest returns the strategy with the highest individual sub-score.
// Ties resolve in declaration order.
func (s StrategyScores) Highest() Strategy {
	best, bestScore := StrategyTiming, s.Timing
	for _, c := range []struct {
		strategy Strategy
		score    float64
	}{
		{StrategyContent, s.Content},
		{StrategyCreative, s.Creative},
		{StrategyAudience, s.Audience},
		{StrategyPerformance, s.Performance},
	} {
		if c.score > bestScore {
			best, bestScore = c.strategy, c.score
		}
	}
	return best
}

// CampaignScore is the scoring of one candidate campaign against a post.
// Score is the match probability; Rank is the 1-based position among
// candidates and is the only ordering key.
type CampaignScore struct {
	CampaignID      string         `json:"campaign_id"`
	CampaignName    string         `json:"campaign_name"`
	Score           float64        `json:"score"`
	WeightedScore   float64        `json:"weighted_score"`
	Rank            int            `json:"rank"`
	PrimaryStrategy Strategy       `json:"primary_strategy"`
	Scores          StrategyScores `json:"scores"`
	Error           string         `json:"error,omitempty"`

	Campaign *Campaign `json:"-"`
}

// MatchResult is the ranked outcome of correlating a post against campaigns.
type MatchResult struct {
	Campaigns            []CampaignScore `json:"campaigns"`
	Confidence           float64         `json:"confidence"`
	MatchQuality         Confidence      `json:"match_quality"`
	MatchStrategy        Strategy        `json:"match_strategy"`
	Details              *StrategyScores `json:"details,omitempty"`
	Alternatives         []CampaignScore `json:"alternatives"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	CandidatesEvaluated  int             `json:"candidates_evaluated"`
	Suggestion           string          `json:"suggestion,omitempty"`
}

// NoMatchSuggestion is reported when no campaign clears the threshold.
const NoMatchSuggestion = "Consider manual campaign linking or verify campaign timing/content"

// NoMatch returns the no-match result.
func NoMatch(evaluated int) *MatchResult {
	return &MatchResult{
		Campaigns:            []CampaignScore{},
		Confidence:           0,
		MatchQuality:         ConfidenceNone,
		MatchStrategy:        StrategyNone,
		Alternatives:         []CampaignScore{},
		RequiresManualReview: true,
		CandidatesEvaluated:  evaluated,
		Suggestion:           NoMatchSuggestion,
	}
}

// Matched reports whether at least one campaign was returned.
func (m *MatchResult) Matched() bool {
	return m != nil && len(m.Campaigns) > 0
}

// Best returns the top-ranked campaign, or nil.
func (m *MatchResult) Best() *CampaignScore {
	if !m.Matched() {
		return nil
	}
	return &m.Campaigns[0]
}

// CampaignIDs lists the returned campaign ids in rank order.
func (m *MatchResult) CampaignIDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.Campaigns))
	for _, c := range m.Campaigns {
		ids = append(ids, c.CampaignID)
	}
	return ids
}
