// Package analysis runs the end-to-end analysis of a LinkedIn post: it
// gathers engagement and campaign data from every source in parallel,
// correlates the post with its campaigns, reconciles the stored engagements
// and generates business insights.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/application/insight"
	"github.com/campaignlens/backend/internal/application/reconciliation"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/campaignlens/backend/internal/infrastructure/scraper"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response statuses.
const (
	StatusSuccess         = "success"
	StatusCached          = "cached"
	StatusFallbackNeeded  = "fallback_needed"
	StatusCompleteFailure = "complete_failure"
)

// timeBasedConfidence is the confidence reported for a schedule-only match.
const timeBasedConfidence = 0.7

var (
	fallbackSuggestions = []string{
		"Try manual campaign linking",
		"Use existing engagement data only",
		"Check LinkedIn URL format",
		"Verify API connectivity",
	}
	failureSuggestions = []string{
		"Check LinkedIn URL format",
		"Verify database connectivity",
		"Try again in a few minutes",
	}
)

// DefaultConfig returns a 24 hour result cache with fallback enabled.
func DefaultConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		CacheResults: true,
		CacheTTL:     24 * time.Hour,
		Fallback:     true,
		FetchTimeout: 5 * time.Minute,
	}
}

// ReactionCollector returns the scraped reactions of a post.
type ReactionCollector interface {
	CollectReactions(ctx context.Context, postURL string) (*scraper.Collection, error)
}

// CampaignLister lists the campaigns of an ad account.
type CampaignLister interface {
	GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error)
}

// CampaignLinker persists a correlation outcome as post to campaign links.
type CampaignLinker interface {
	LinkCorrelation(ctx context.Context, post *analytics.Post, match *analytics.MatchResult) error
}

// CampaignCorrelator scores a post against candidate campaigns.
type CampaignCorrelator interface {
	FindBestMatch(ctx context.Context, post *analytics.Post, campaigns []analytics.Campaign) (*analytics.MatchResult, error)
}

// Options controls a single AnalyzePost call.
type Options struct {
	// AnalysisID lets the caller choose the id it will poll. A new id is
	// generated when empty.
	AnalysisID   string
	ForceRefresh bool
}

// PostSummary is the stored post as reported in a result.
type PostSummary struct {
	ID                uuid.UUID  `json:"id"`
	URL               string     `json:"url"`
	Title             string     `json:"title,omitempty"`
	AuthorName        string     `json:"author_name,omitempty"`
	PostedAt          *time.Time `json:"posted_at,omitempty"`
	PrimaryCampaignID string     `json:"primary_campaign_id,omitempty"`
	TotalEngagements  int        `json:"total_engagements"`
}

// RunSummary describes the scraper run the engagements came from.
type RunSummary struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ItemCount int    `json:"item_count"`
	FromCache bool   `json:"from_cache"`
}

// Result is the data of a finished analysis.
type Result struct {
	AnalysisID       string                  `json:"analysis_id"`
	Metadata         *analytics.PostMetadata `json:"metadata"`
	Post             PostSummary             `json:"post"`
	Match            *analytics.MatchResult  `json:"match"`
	Reconciliation   *reconciliation.Report  `json:"reconciliation,omitempty"`
	Insights         *insight.Report         `json:"insights,omitempty"`
	DataQuality      DataQuality             `json:"data_quality"`
	Sources          []SourceResult          `json:"sources"`
	ScraperRun       *RunSummary             `json:"scraper_run,omitempty"`
	Enrichment       *enrichmentCheck        `json:"enrichment,omitempty"`
	ProcessingTimeMS int64                   `json:"processing_time_ms"`
}

// PartialData is whatever was already stored when an analysis failed.
type PartialData struct {
	Post        *PostSummary `json:"post,omitempty"`
	Engagements int          `json:"engagements"`
}

// Response is the outcome of AnalyzePost.
type Response struct {
	Success             bool             `json:"success"`
	Status              string           `json:"status"`
	ProcessingTimeMS    int64            `json:"processing_time_ms"`
	ProcessingStatus    ProcessingStatus `json:"processing_status"`
	Data                *Result          `json:"data,omitempty"`
	Error               string           `json:"error,omitempty"`
	FallbackError       string           `json:"fallback_error,omitempty"`
	FallbackSuggestions []string         `json:"fallback_suggestions,omitempty"`
	PartialData         *PartialData     `json:"partial_data,omitempty"`
	Timestamp           time.Time        `json:"timestamp"`
}

// Dependencies are the collaborators of an Orchestrator. Collector, Platform
// and Linker are optional: a missing source is reported as a failed fetch.
type Dependencies struct {
	Posts       analytics.PostRepository
	Engagements analytics.EngagementRepository
	Persons     analytics.PersonRepository
	Reports     analytics.AnalyticsRepository
	Analyses    analytics.AnalysisRepository

	Collector ReactionCollector
	Platform  CampaignLister
	Linker    CampaignLinker

	Correlator CampaignCorrelator
	Reconciler *reconciliation.Reconciler
	Insights   *insight.Generator
	Tracker    *Tracker
}

// Orchestrator drives post analyses through their stages.
type Orchestrator struct {
	posts       analytics.PostRepository
	engagements analytics.EngagementRepository
	persons     analytics.PersonRepository
	reports     analytics.AnalyticsRepository
	analyses    analytics.AnalysisRepository

	collector ReactionCollector
	platform  CampaignLister
	linker    CampaignLinker

	correlator CampaignCorrelator
	reconciler *reconciliation.Reconciler
	insights   *insight.Generator
	tracker    *Tracker

	cfg        config.AnalysisConfig
	accountID  string
	thresholds analytics.ConfidenceThresholds
	publisher  shared.EventPublisher
	metrics    *telemetry.PipelineMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAccountID sets the ad account whose campaigns are correlated.
func WithAccountID(id string) Option {
	return func(o *Orchestrator) { o.accountID = id }
}

// WithEventPublisher publishes analysis outcomes.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithMetrics records analysis and stage durations.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Dependencies, cfg config.AnalysisConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		posts:       deps.Posts,
		engagements: deps.Engagements,
		persons:     deps.Persons,
		reports:     deps.Reports,
		analyses:    deps.Analyses,
		collector:   deps.Collector,
		platform:    deps.Platform,
		linker:      deps.Linker,
		correlator:  deps.Correlator,
		reconciler:  deps.Reconciler,
		insights:    deps.Insights,
		tracker:     deps.Tracker,
		cfg:         cfg,
		thresholds:  analytics.DefaultConfidenceThresholds(),
		publisher:   shared.NopPublisher{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the progress record of an analysis.
func (o *Orchestrator) Status(ctx context.Context, analysisID string) (*ProcessingStatus, error) {
	return o.tracker.Get(ctx, analysisID)
}

// Register records analysisID as pending before a background AnalyzePost.
func (o *Orchestrator) Register(ctx context.Context, analysisID, rawURL string) error {
	return o.tracker.Register(ctx, analysisID, rawURL, o.now())
}

// AnalyzePost runs the full analysis of a post URL. Failures are reported in
// the response as fallback_needed or complete_failure; an error is returned
// only when fallback is disabled.
func (o *Orchestrator) AnalyzePost(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	id := opts.AnalysisID
	if id == "" {
		id = uuid.NewString()
	}
	ctx, log := logger.WithAnalysis(ctx, o.logger, id, rawURL)
	ctx, span := telemetry.StartSpan(ctx, "analysis.analyze_post", telemetry.SpanAttrPostURL, rawURL)
	defer span.End()

	start := o.now()
	r := o.tracker.begin(ctx, id, rawURL, o.now)
	log.Info("Starting post analysis")

	resp, err := o.analyze(ctx, r, rawURL, opts)
	if err != nil {
		telemetry.RecordError(span, err)
		r.fail(err.Error())
		o.leave(ctx, r, analytics.StageFailed)
		log.Error("Post analysis failed", zap.Error(err))
		if !o.cfg.Fallback {
			o.metrics.RecordAnalysis(ctx, "error", o.now().Sub(start))
			return nil, err
		}
		resp = o.fallback(ctx, rawURL, err)
		o.publish(ctx, analytics.NewAnalysisFailedEvent(rawURL, resp.Status, err.Error()))
	}

	resp.ProcessingTimeMS = elapsedMS(start, o.now())
	resp.ProcessingStatus = r.snapshot()
	resp.Timestamp = o.now().UTC()
	o.metrics.RecordAnalysis(ctx, resp.Status, o.now().Sub(start))
	telemetry.SetAttributes(span, telemetry.SpanAttrStage, string(resp.ProcessingStatus.Stage))
	log.Info("Post analysis finished",
		zap.String("status", resp.Status), zap.Int64("processing_time_ms", resp.ProcessingTimeMS))
	return resp, nil
}

// leave moves the run to next and records how long the previous stage took.
func (o *Orchestrator) leave(ctx context.Context, r *run, next analytics.Stage) {
	prev, d, ok := r.advance(ctx, next)
	if ok && prev != analytics.StageIdle {
		o.metrics.RecordStage(ctx, string(prev), d)
	}
}

// stage enters a stage and runs fn with profiler labels naming it.
func (o *Orchestrator) stage(ctx context.Context, r *run, s analytics.Stage, fn func(context.Context)) {
	o.leave(ctx, r, s)
	telemetry.WithStageLabels(ctx, string(s), fn)
}

func (o *Orchestrator) analyze(ctx context.Context, r *run, rawURL string, opts Options) (*Response, error) {
	meta, err := analytics.ExtractPostMetadata(rawURL)
	if err != nil {
		return nil, err
	}
	o.leave(ctx, r, analytics.StageMetadataExtracted)

	if o.cfg.CacheResults && !opts.ForceRefresh {
		if cached := o.cached(ctx, meta.CanonicalURL); cached != nil {
			logger.L(ctx).Info("Using cached analysis", zap.String("cached_analysis_id", cached.AnalysisID))
			o.leave(ctx, r, analytics.StageComplete)
			return &Response{Success: true, Status: StatusCached, Data: cached}, nil
		}
	}

	var data *fetched
	o.stage(ctx, r, analytics.StageFetchingData, func(ctx context.Context) {
		data = o.fetchAll(ctx, r, meta)
	})

	result := &Result{AnalysisID: r.status.AnalysisID, Metadata: meta, Sources: data.sources}
	var (
		post *analytics.Post
		perr error
	)
	o.stage(ctx, r, analytics.StageCorrelatingData, func(ctx context.Context) {
		post, perr = o.correlate(ctx, r, data, result)
	})
	if perr != nil {
		return nil, perr
	}

	o.stage(ctx, r, analytics.StageGeneratingInsights, func(ctx context.Context) {
		result.Insights = o.generateInsights(ctx, r, post, result.Match)
	})

	o.stage(ctx, r, analytics.StageFinalizing, func(ctx context.Context) {
		o.finalize(ctx, r, post, result)
	})
	o.leave(ctx, r, analytics.StageComplete)
	return &Response{Success: true, Status: StatusSuccess, Data: result}, nil
}

// correlate persists the post and its cleaned engagements, matches the post
// against the fetched campaigns and reconciles the stored engagements.
func (o *Orchestrator) correlate(ctx context.Context, r *run, data *fetched, result *Result) (*analytics.Post, error) {
	var (
		post     *analytics.Post
		existing []analytics.Engagement
		scraped  []analytics.ScrapedReaction
	)
	if data.existing != nil {
		post = data.existing.post
		existing = data.existing.engagements
	}
	if post == nil {
		post = analytics.NewPost(result.Metadata.CanonicalURL)
		post.Title = "LinkedIn Post"
	}
	if data.collection != nil {
		scraped = data.collection.Items
		if sr := data.collection.Run; sr != nil {
			result.ScraperRun = &RunSummary{
				ID:        sr.ID,
				Status:    string(sr.Status),
				ItemCount: len(scraped),
				FromCache: data.collection.FromCache,
			}
		}
	}
	result.Enrichment = data.enrichment

	clean, quality := cleanReactions(scraped, existing)
	post.TotalEngagements = len(existing) + len(clean)
	if err := o.posts.Upsert(ctx, post); err != nil {
		return nil, fmt.Errorf("store post: %w", err)
	}
	if err := o.storeEngagements(ctx, post, clean); err != nil {
		r.warn(fmt.Sprintf("persist engagements: %v", err))
		logger.L(ctx).Warn("Persisting engagements failed", zap.Error(err))
	}
	quality.EngagementCount = post.TotalEngagements

	result.Match = o.matchCampaigns(ctx, r, post, data.campaigns)
	quality.MatchConfidence = result.Match.Confidence
	result.DataQuality = quality

	if result.Match.Matched() && o.linker != nil {
		if err := o.linker.LinkCorrelation(ctx, post, result.Match); err != nil {
			r.warn(fmt.Sprintf("link campaigns: %v", err))
			logger.L(ctx).Warn("Linking campaigns failed", zap.Error(err))
		}
	}

	if o.reconciler != nil {
		var vopts []reconciliation.ValidateOption
		if data.collection != nil {
			vopts = append(vopts, reconciliation.CompareWith(scraped))
		}
		report, err := o.reconciler.ValidatePostEngagements(ctx, post.ID, vopts...)
		if err != nil {
			r.warn(fmt.Sprintf("reconciliation: %v", err))
		}
		result.Reconciliation = report
	}
	return post, nil
}

func (o *Orchestrator) storeEngagements(ctx context.Context, post *analytics.Post, clean []cleanItem) error {
	if len(clean) == 0 {
		return nil
	}
	persons := make([]*analytics.Person, len(clean))
	for i := range clean {
		persons[i] = clean[i].person
	}
	if err := o.persons.Upsert(ctx, persons...); err != nil {
		return fmt.Errorf("upsert persons: %w", err)
	}

	now := o.now()
	rows := make([]*analytics.Engagement, len(clean))
	for i, item := range clean {
		personID := item.person.ID
		rows[i] = &analytics.Engagement{
			ID:           uuid.New(),
			PostID:       post.ID,
			PersonID:     &personID,
			ProfileURL:   item.reaction.LinkedInURL,
			ReactionType: item.reaction.ReactionType,
			CreatedAt:    now,
		}
	}
	if err := o.engagements.Upsert(ctx, rows...); err != nil {
		return fmt.Errorf("upsert engagements: %w", err)
	}
	return nil
}

// matchCampaigns runs the correlator. The schedule-only match is used when
// the correlator is missing or fails; a correlator no-match is kept as is.
// The result is never nil.
func (o *Orchestrator) matchCampaigns(ctx context.Context, r *run, post *analytics.Post, campaigns []analytics.Campaign) *analytics.MatchResult {
	if len(campaigns) == 0 {
		return analytics.NoMatch(0)
	}
	if o.correlator != nil {
		match, err := o.correlator.FindBestMatch(ctx, post, campaigns)
		if err == nil && match != nil {
			return match
		}
		if err != nil {
			r.warn(fmt.Sprintf("correlation: %v", err))
			logger.L(ctx).Warn("Campaign correlation failed, using time window", zap.Error(err))
		}
	}
	if fb := o.timeBasedMatch(post, campaigns); fb != nil {
		logger.L(ctx).Info("Matched campaigns by schedule", zap.Int("campaigns", len(fb.Campaigns)))
		return fb
	}
	return analytics.NoMatch(len(campaigns))
}

// timeBasedMatch returns every campaign whose schedule contains the post date.
func (o *Orchestrator) timeBasedMatch(post *analytics.Post, campaigns []analytics.Campaign) *analytics.MatchResult {
	published := post.PublishedAt()
	if published == nil {
		return nil
	}
	now := o.now()
	var scores []analytics.CampaignScore
	for i := range campaigns {
		c := &campaigns[i]
		if c.Schedule == nil || !c.Schedule.Contains(*published, now) {
			continue
		}
		scores = append(scores, analytics.CampaignScore{
			CampaignID:      c.ID,
			CampaignName:    c.Name,
			Score:           timeBasedConfidence,
			WeightedScore:   timeBasedConfidence,
			Rank:            len(scores) + 1,
			PrimaryStrategy: analytics.StrategyTimeBased,
			Campaign:        c,
		})
	}
	if len(scores) == 0 {
		return nil
	}
	return &analytics.MatchResult{
		Campaigns:            scores,
		Confidence:           timeBasedConfidence,
		MatchQuality:         o.thresholds.Classify(timeBasedConfidence),
		MatchStrategy:        analytics.StrategyTimeBased,
		Alternatives:         []analytics.CampaignScore{},
		RequiresManualReview: len(scores) > 1,
		CandidatesEvaluated:  len(campaigns),
	}
}

func (o *Orchestrator) generateInsights(ctx context.Context, r *run, post *analytics.Post, match *analytics.MatchResult) *insight.Report {
	if o.insights == nil {
		return nil
	}
	in := insight.Input{Post: post}
	for _, c := range match.Campaigns {
		if c.Campaign != nil {
			in.Campaigns = append(in.Campaigns, *c.Campaign)
		}
	}
	var err error
	if in.Engagements, err = o.engagements.FindByPost(ctx, post.ID); err != nil {
		r.warn(fmt.Sprintf("insights: load engagements: %v", err))
	}
	if ids := match.CampaignIDs(); len(ids) > 0 && o.reports != nil {
		if in.Analytics, err = o.reports.FindByCampaigns(ctx, ids); err != nil {
			r.warn(fmt.Sprintf("insights: load campaign analytics: %v", err))
		}
	}
	return o.insights.Generate(ctx, in)
}

func (o *Orchestrator) finalize(ctx context.Context, r *run, post *analytics.Post, result *Result) {
	result.Post = summarizePost(post)
	result.ProcessingTimeMS = elapsedMS(r.status.StartedAt, o.now())

	if o.cfg.CacheResults && o.analyses != nil {
		payload, err := json.Marshal(result)
		if err == nil {
			err = o.analyses.Save(ctx, &analytics.AnalysisRecord{
				ID:        uuid.New(),
				PostURL:   post.URL,
				PostID:    result.Metadata.PostID,
				Status:    StatusSuccess,
				Payload:   payload,
				CreatedAt: o.now(),
			})
		}
		if err != nil {
			r.warn(fmt.Sprintf("cache analysis: %v", err))
		}
	}

	o.publish(ctx, analytics.NewAnalysisCompletedEvent(
		post.URL, StatusSuccess, result.Match.MatchQuality, result.Match.CampaignIDs(),
		result.DataQuality.EngagementCount, r.warnings()))
}

// cached returns a fresh stored result, or nil.
func (o *Orchestrator) cached(ctx context.Context, url string) *Result {
	if o.analyses == nil {
		return nil
	}
	rec, err := o.analyses.LatestForURL(ctx, url)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			logger.L(ctx).Warn("Analysis cache lookup failed", zap.Error(err))
		}
		return nil
	}
	if !rec.IsFresh(o.now(), o.cfg.CacheTTL) {
		return nil
	}
	var res Result
	if err := json.Unmarshal(rec.Payload, &res); err != nil {
		logger.L(ctx).Warn("Cached analysis unreadable", zap.Error(err))
		return nil
	}
	return &res
}

// fallback reports whatever stored data exists for the post together with
// manual remediation steps.
func (o *Orchestrator) fallback(ctx context.Context, rawURL string, cause error) *Response {
	resp := &Response{Success: false, Error: cause.Error()}
	existing, err := o.loadExisting(ctx, analytics.CanonicalPostURL(rawURL))
	if err != nil {
		resp.Status = StatusCompleteFailure
		resp.FallbackError = err.Error()
		resp.FallbackSuggestions = failureSuggestions
		return resp
	}
	resp.Status = StatusFallbackNeeded
	resp.FallbackSuggestions = fallbackSuggestions
	if existing != nil {
		summary := summarizePost(existing.post)
		resp.PartialData = &PartialData{Post: &summary, Engagements: len(existing.engagements)}
	}
	return resp
}

func (o *Orchestrator) publish(ctx context.Context, event shared.DomainEvent) {
	if err := o.publisher.Publish(ctx, event); err != nil {
		logger.L(ctx).Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}

func summarizePost(p *analytics.Post) PostSummary {
	return PostSummary{
		ID:                p.ID,
		URL:               p.URL,
		Title:             p.Title,
		AuthorName:        p.AuthorName,
		PostedAt:          p.PostedAt,
		PrimaryCampaignID: p.PrimaryCampaignID,
		TotalEngagements:  p.TotalEngagements,
	}
}
