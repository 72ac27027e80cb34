// Package correlation scores ad campaigns against a LinkedIn post and picks
// the campaigns most likely to have produced it.
package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxAlternatives bounds MatchResult.Alternatives.
const maxAlternatives = 3

// confirmedScoreFactor scales a confirming creative sub-score into the final
// score, so an exact creative match lands in the high bucket on its own.
const confirmedScoreFactor = 0.9

// DefaultConfig returns the standard weights and thresholds.
func DefaultConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		TimingWeight:             0.25,
		ContentWeight:            0.20,
		CreativeWeight:           0.30,
		AudienceWeight:           0.15,
		PerformanceWeight:        0.10,
		HighThreshold:            0.85,
		MediumThreshold:          0.65,
		LowThreshold:             0.45,
		CloseMatchBand:           0.10,
		CreativeConfirmThreshold: 0.95,
		PerformanceBandLow:       0.001,
		PerformanceBandHigh:      0.05,
		MaxParallelCandidates:    4,
		PrimaryLinkPolicy:        string(analytics.PrimaryFirstWriteWins),
	}
}

// Correlator scores candidate campaigns against a post.
type Correlator struct {
	creatives   analytics.CreativeSource
	engagements analytics.EngagementRepository
	analytics   analytics.AnalyticsRepository
	resolver    analytics.URNResolver
	cfg         config.CorrelationConfig
	thresholds  analytics.ConfidenceThresholds
	metrics     *telemetry.PipelineMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithEngagements supplies the engagements used by the audience and
// performance strategies.
func WithEngagements(r analytics.EngagementRepository) Option {
	return func(c *Correlator) { c.engagements = r }
}

// WithAnalytics supplies campaign reporting rows for the performance strategy.
func WithAnalytics(r analytics.AnalyticsRepository) Option {
	return func(c *Correlator) { c.analytics = r }
}

// WithResolver supplies the URN resolver used to name targeted companies and titles.
func WithResolver(r analytics.URNResolver) Option {
	return func(c *Correlator) { c.resolver = r }
}

// WithMetrics records match outcomes.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(c *Correlator) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Correlator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCorrelator creates a Correlator. creatives may be nil, in which case
// the creative strategy reports a low neutral score.
func NewCorrelator(creatives analytics.CreativeSource, cfg config.CorrelationConfig, opts ...Option) *Correlator {
	if cfg.MaxParallelCandidates <= 0 {
		cfg.MaxParallelCandidates = 1
	}
	c := &Correlator{
		creatives: creatives,
		cfg:       cfg,
		thresholds: analytics.ConfidenceThresholds{
			High:   cfg.HighThreshold,
			Medium: cfg.MediumThreshold,
			Low:    cfg.LowThreshold,
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// postAudience is the engagement data of one post, loaded once per match.
type postAudience struct {
	engagements []analytics.Engagement
	companies   []string
	titles      []string
}

func (c *Correlator) loadAudience(ctx context.Context, post *analytics.Post) *postAudience {
	audience := &postAudience{}
	if c.engagements == nil || post.ID == uuid.Nil {
		return audience
	}
	rows, err := c.engagements.FindByPost(ctx, post.ID)
	if err != nil {
		c.upstreamWarning(ctx, "engagements", post.ID.String(), err)
		return audience
	}
	audience.engagements = rows
	for i := range rows {
		p := rows[i].Person
		if p == nil {
			continue
		}
		if company := strings.ToLower(strings.TrimSpace(p.EffectiveCompany())); company != "" {
			audience.companies = append(audience.companies, company)
		}
		if title := strings.ToLower(strings.TrimSpace(p.EffectiveTitle())); title != "" {
			audience.titles = append(audience.titles, title)
		}
	}
	return audience
}

func (c *Correlator) upstreamWarning(ctx context.Context, source, id string, err error) {
	c.logger.Warn("Correlation signal unavailable",
		zap.String("source", source),
		zap.String("id", id),
		zap.Error(analytics.ErrUpstreamUnavailable.Wrap(err)),
	)
	c.metrics.RecordSourceFailure(ctx, source)
}

// FindBestMatch scores every campaign against post and returns the top
// campaign together with every campaign scoring within the close-match band
// of it. An empty candidate list or no candidate reaching the low threshold
// yields the no-match result.
func (c *Correlator) FindBestMatch(ctx context.Context, post *analytics.Post, campaigns []analytics.Campaign) (*analytics.MatchResult, error) {
	if post == nil || strings.TrimSpace(post.URL) == "" {
		return nil, analytics.ErrInputMalformed.WithMessage("post url is required for correlation")
	}
	if len(campaigns) == 0 {
		return analytics.NoMatch(0), nil
	}

	ctx, span := telemetry.StartSpan(ctx, "correlation.find_best_match",
		telemetry.SpanAttrPostURL, post.URL,
		telemetry.SpanAttrCandidates, len(campaigns))
	defer span.End()

	scores, err := c.scoreAll(ctx, post, campaigns)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := c.rank(scores)
	telemetry.SetAttributes(span, telemetry.SpanAttrConfidence, result.Confidence)

	c.metrics.RecordMatch(ctx, string(result.MatchQuality), string(result.MatchStrategy), result.Confidence, len(campaigns))
	if best := result.Best(); best != nil {
		c.logger.Info("Campaign match found",
			zap.String("post_url", post.URL),
			zap.String("campaign_id", best.CampaignID),
			zap.String("quality", string(result.MatchQuality)),
			zap.Float64("confidence", result.Confidence),
		)
	} else {
		c.logger.Info("No campaign reached the minimum confidence", zap.String("post_url", post.URL), zap.Int("candidates", len(campaigns)))
	}
	return result, nil
}

// scoreAll scores candidates concurrently. A failing candidate is scored 0
// with the error strategy and never affects the others.
func (c *Correlator) scoreAll(ctx context.Context, post *analytics.Post, campaigns []analytics.Campaign) ([]analytics.CampaignScore, error) {
	audience := c.loadAudience(ctx, post)
	scores := make([]analytics.CampaignScore, len(campaigns))

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.MaxParallelCandidates)
	for i := range campaigns {
		campaign := &campaigns[i]
		g.Go(func() error {
			scores[i] = c.scoreCandidate(ctx, post, campaign, audience)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (c *Correlator) scoreCandidate(ctx context.Context, post *analytics.Post, campaign *analytics.Campaign, audience *postAudience) (score analytics.CampaignScore) {
	score = analytics.CampaignScore{
		CampaignID:   campaign.ID,
		CampaignName: campaign.Name,
		Campaign:     campaign,
	}
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scoring campaign %s: %v", campaign.ID, r)
			c.logger.Warn("Campaign scoring failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
			score.Score, score.WeightedScore = 0, 0
			score.Scores = analytics.StrategyScores{}
			score.PrimaryStrategy = analytics.StrategyError
			score.Error = err.Error()
		}
	}()

	s := analytics.StrategyScores{
		Timing:      timingScore(post, campaign, c.now()),
		Content:     contentScore(post, campaign),
		Creative:    c.creativeScore(ctx, post, campaign),
		Audience:    c.audienceScore(ctx, campaign, audience),
		Performance: c.performanceScore(ctx, campaign, audience),
	}
	weighted := s.Timing*c.cfg.TimingWeight +
		s.Content*c.cfg.ContentWeight +
		s.Creative*c.cfg.CreativeWeight +
		s.Audience*c.cfg.AudienceWeight +
		s.Performance*c.cfg.PerformanceWeight

	score.Scores = s
	score.WeightedScore = weighted
	score.Score = weighted
	if c.confirmed(s) {
		score.Score = max(weighted, s.Creative*confirmedScoreFactor)
	}
	score.PrimaryStrategy = s.Highest()
	return score
}

func (c *Correlator) confirmed(s analytics.StrategyScores) bool {
	return s.Creative >= c.cfg.CreativeConfirmThreshold
}

// rank orders scores, assigns ranks and builds the match result.
func (c *Correlator) rank(scores []analytics.CampaignScore) *analytics.MatchResult {
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	for i := range scores {
		scores[i].Rank = i + 1
	}

	eligible := make([]analytics.CampaignScore, 0, len(scores))
	for _, s := range scores {
		if s.PrimaryStrategy != analytics.StrategyError && s.Score >= c.cfg.LowThreshold {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) == 0 {
		return analytics.NoMatch(len(scores))
	}

	best := eligible[0]
	bestConfirmed := c.confirmed(best.Scores)
	closeMatches := make([]analytics.CampaignScore, 0, 1)
	for _, s := range eligible {
		if best.Score-s.Score > c.cfg.CloseMatchBand {
			break
		}
		if bestConfirmed && !c.confirmed(s.Scores) {
			continue
		}
		closeMatches = append(closeMatches, s)
	}

	alternatives := eligible[1:]
	if len(alternatives) > maxAlternatives {
		alternatives = alternatives[:maxAlternatives]
	}
	details := best.Scores
	quality := c.thresholds.Classify(best.Score)
	return &analytics.MatchResult{
		Campaigns:            closeMatches,
		Confidence:           best.Score,
		MatchQuality:         quality,
		MatchStrategy:        best.PrimaryStrategy,
		Details:              &details,
		Alternatives:         append([]analytics.CampaignScore(nil), alternatives...),
		RequiresManualReview: quality == analytics.ConfidenceLow,
		CandidatesEvaluated:  len(scores),
	}
}

// BatchItem is the outcome of correlating one post.
type BatchItem struct {
	Post  *analytics.Post
	Match *analytics.MatchResult
	Err   error
}

// BatchResult is the outcome of CorrelateBatch.
type BatchResult struct {
	Items     []BatchItem
	Succeeded int
	Failed    int
}

// CorrelateBatch runs FindBestMatch for every post. Individual failures are
// reported per item and never stop the batch.
func (c *Correlator) CorrelateBatch(ctx context.Context, posts []*analytics.Post, campaigns []analytics.Campaign) *BatchResult {
	res := &BatchResult{Items: make([]BatchItem, 0, len(posts))}
	for _, post := range posts {
		item := BatchItem{Post: post}
		item.Match, item.Err = c.FindBestMatch(ctx, post, campaigns)
		if item.Err != nil {
			res.Failed++
		} else {
			res.Succeeded++
		}
		res.Items = append(res.Items, item)
	}
	c.logger.Info("Batch correlation complete", zap.Int("succeeded", res.Succeeded), zap.Int("total", len(posts)))
	return res
}
