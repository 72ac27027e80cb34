// Package reconciliation validates the persisted engagements of a post,
// removes duplicates, links orphans and reports data quality.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConfig returns the standard reconciliation thresholds.
func DefaultConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		MaxEngagementAge:         365 * 24 * time.Hour,
		MediumQualityThreshold:   0.6,
		HighQualityThreshold:     0.8,
		DuplicateRecommendation:  10,
		DiscrepancyThreshold:     20,
		MaxParallelPosts:         4,
		QueueEnrichmentCandidate: true,
	}
}

// Reconciler validates and cleans the engagement data of posts.
type Reconciler struct {
	posts       analytics.PostRepository
	engagements analytics.EngagementRepository
	linker      OrphanLinker
	enrichment  EnrichmentTrigger
	events      shared.EventPublisher
	cfg         config.ReconciliationConfig
	metrics     *telemetry.PipelineMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithOrphanLinker sets how orphans are linked. The default links nothing.
func WithOrphanLinker(l OrphanLinker) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.linker = l
		}
	}
}

// WithEnrichmentTrigger sets where enrichment candidates are queued.
func WithEnrichmentTrigger(t EnrichmentTrigger) Option {
	return func(r *Reconciler) {
		if t != nil {
			r.enrichment = t
		}
	}
}

func WithEventPublisher(p shared.EventPublisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.events = p
		}
	}
}

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a Reconciler. posts may be nil, in which case the
// post existence check is skipped.
func NewReconciler(posts analytics.PostRepository, engagements analytics.EngagementRepository, cfg config.ReconciliationConfig, opts ...Option) *Reconciler {
	if cfg.MaxParallelPosts <= 0 {
		cfg.MaxParallelPosts = 1
	}
	r := &Reconciler{
		posts:       posts,
		engagements: engagements,
		linker:      nopLinker{},
		enrichment:  nopTrigger{},
		events:      shared.NopPublisher{},
		cfg:         cfg,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type validateOptions struct {
	scraped []analytics.ScrapedReaction
	dryRun  bool
}

// ValidateOption tunes a single validation.
type ValidateOption func(*validateOptions)

// CompareWith compares the persisted engagements against a fresh scraper
// dataset. A nil dataset means none was supplied.
func CompareWith(scraped []analytics.ScrapedReaction) ValidateOption {
	return func(o *validateOptions) { o.scraped = scraped }
}

// DryRun reports the cleanup plan without changing any record.
func DryRun() ValidateOption {
	return func(o *validateOptions) { o.dryRun = true }
}

// ValidatePostEngagements loads the engagements of a post, diagnoses them,
// runs the cleanup and returns the report. Cleanup failures are reported in
// Cleanup.Errors; only a failure to load the post data fails the call.
func (r *Reconciler) ValidatePostEngagements(ctx context.Context, postID uuid.UUID, opts ...ValidateOption) (*Report, error) {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := telemetry.StartSpan(ctx, "reconciliation.validate_post",
		telemetry.SpanAttrPostID, postID.String())
	defer span.End()

	rows, orphans, err := r.load(ctx, postID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	a := &analyzer{cfg: r.cfg, now: r.now()}
	a.metrics.TotalEngagements = len(rows)
	a.metrics.OrphanedEngagements = len(orphans)

	report := &Report{PostID: postID, ValidatedAt: a.now}
	report.Analysis.Engagements = a.engagementQuality(rows)
	report.Analysis.Persons = a.personQuality(rows)
	report.Analysis.Duplicates = a.duplicates(rows)
	if o.scraped != nil {
		report.Analysis.Comparison = compare(rows, o.scraped)
	}
	report.Analysis.Issues = a.issues(len(orphans), report.Analysis.Duplicates, report.Analysis.Persons)

	report.Cleanup = r.cleanup(ctx, postID, orphans, report.Analysis, o.dryRun)
	report.Metrics = a.metrics
	report.Recommendations = recommendations(a.metrics, report.Analysis.Comparison, r.cfg)
	report.Summary = summarize(a.metrics)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEngagementRows, len(rows),
		telemetry.SpanAttrQualityScore, report.Summary.DataQualityScore)
	r.metrics.RecordReconciliation(ctx, report.Summary.DataQualityScore,
		a.metrics.OrphanedEngagements, a.metrics.DuplicateEngagements, a.metrics.LowQualityPersons)

	r.logger.Info("Engagement validation complete",
		zap.String("post_id", postID.String()),
		zap.Int("engagements", len(rows)),
		zap.Int("quality_score", report.Summary.DataQualityScore),
		zap.String("status", report.Summary.Status),
		zap.Int("duplicates_removed", report.Cleanup.DuplicatesRemoved),
		zap.Int("orphans_linked", report.Cleanup.OrphansLinked),
	)
	return report, nil
}

func (r *Reconciler) load(ctx context.Context, postID uuid.UUID) ([]analytics.Engagement, []analytics.Engagement, error) {
	if r.posts != nil {
		if _, err := r.posts.FindByID(ctx, postID); err != nil {
			return nil, nil, fmt.Errorf("load post %s: %w", postID, err)
		}
	}
	rows, err := r.engagements.FindByPost(ctx, postID)
	if err != nil {
		return nil, nil, fmt.Errorf("load engagements of post %s: %w", postID, err)
	}
	orphans, err := r.engagements.FindOrphansByPost(ctx, postID)
	if err != nil {
		r.logger.Warn("Orphan query failed, deriving orphans from engagements",
			zap.String("post_id", postID.String()), zap.Error(err))
		orphans = orphans[:0]
		for i := range rows {
			if rows[i].IsOrphaned() {
				orphans = append(orphans, rows[i])
			}
		}
	}
	return rows, orphans, nil
}

// cleanup removes duplicates, links the orphans that survived removal and
// queues enrichment candidates. Each step runs even if an earlier one failed.
func (r *Reconciler) cleanup(ctx context.Context, postID uuid.UUID, orphans []analytics.Engagement, analysis Analysis, dryRun bool) Cleanup {
	res := Cleanup{DryRun: dryRun}
	removeIDs := analysis.Duplicates.RemoveIDs()
	if dryRun {
		return res
	}

	if len(removeIDs) > 0 {
		removed, err := r.engagements.DeleteByIDs(ctx, removeIDs)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate removal failed: %v", err))
		} else {
			res.DuplicatesRemoved = int(removed)
			r.metrics.RecordCleanup(ctx, removed)
		}
	}

	removed := make(map[uuid.UUID]struct{}, len(removeIDs))
	for _, id := range removeIDs {
		removed[id] = struct{}{}
	}
	remaining := make([]analytics.Engagement, 0, len(orphans))
	for i := range orphans {
		if _, gone := removed[orphans[i].ID]; !gone {
			remaining = append(remaining, orphans[i])
		}
	}
	if len(remaining) > 0 {
		linked, err := r.linker.LinkOrphans(ctx, remaining)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("orphan linking failed: %v", err))
		}
		res.OrphansLinked = linked
	}

	candidates := analysis.Persons.EnrichmentCandidates
	if r.cfg.QueueEnrichmentCandidate && len(candidates) > 0 {
		ids := make([]uuid.UUID, len(candidates))
		names := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.PersonID
			names[i] = c.PersonID.String()
		}
		queued, err := r.enrichment.QueueForEnrichment(ctx, ids, candidatePriority)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("person enrichment failed: %v", err))
		}
		res.PersonsQueued = queued
		r.publish(ctx, analytics.NewEnrichmentCandidatesEvent(postID.String(), names, candidatePriority))
	}

	if res.DuplicatesRemoved > 0 || res.OrphansLinked > 0 {
		r.publish(ctx, analytics.NewCleanupExecutedEvent(postID.String(), res.DuplicatesRemoved, res.OrphansLinked))
	}
	if len(res.Errors) > 0 {
		r.logger.Warn("Cleanup finished with errors",
			zap.String("post_id", postID.String()),
			zap.Strings("errors", res.Errors),
			zap.Error(analytics.ErrReconciliationConflict))
	}
	return res
}

func (r *Reconciler) publish(ctx context.Context, event shared.DomainEvent) {
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}

// ValidateBatch validates several posts concurrently. A failing post is
// reported in its item and never stops the batch.
func (r *Reconciler) ValidateBatch(ctx context.Context, postIDs []uuid.UUID, opts ...ValidateOption) *BatchReport {
	items := make([]BatchItem, len(postIDs))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.MaxParallelPosts)
	for i, id := range postIDs {
		g.Go(func() error {
			items[i].PostID = id
			report, err := r.ValidatePostEngagements(ctx, id, opts...)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Report = report
			return nil
		})
	}
	_ = g.Wait()

	summary := BatchSummary{PostsAnalyzed: len(items)}
	var qualitySum int
	for _, item := range items {
		if item.Report == nil {
			continue
		}
		summary.SuccessfulAnalyses++
		summary.TotalIssuesFound += item.Report.Summary.TotalIssues
		qualitySum += item.Report.Summary.DataQualityScore
	}
	if summary.SuccessfulAnalyses > 0 {
		summary.AverageQualityScore = int(float64(qualitySum)/float64(summary.SuccessfulAnalyses) + 0.5)
	}
	if summary.TotalIssuesFound > 0 {
		summary.RecommendedActions = []string{"Run data cleanup", "Review data sources"}
	} else {
		summary.RecommendedActions = []string{"No action needed"}
	}

	r.logger.Info("Batch validation complete",
		zap.Int("posts", summary.PostsAnalyzed),
		zap.Int("successful", summary.SuccessfulAnalyses),
		zap.Int("issues", summary.TotalIssuesFound))
	return &BatchReport{Items: items, Summary: summary}
}
