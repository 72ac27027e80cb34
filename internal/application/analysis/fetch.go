package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/scraper"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source names of the parallel fetch.
const (
	SourceExistingPost      = "existing_post"
	SourceScraper           = "apify_scraper"
	SourceAdPlatform        = "linkedin_api"
	SourceProfileEnrichment = "profile_enrichment"
)

// SourceResult records how one fetch source settled.
type SourceResult struct {
	Source     string `json:"source"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

type existingPost struct {
	post        *analytics.Post
	engagements []analytics.Engagement
}

// enrichmentCheck reports the enrichment backlog at analysis time.
type enrichmentCheck struct {
	Needed  bool  `json:"enrichment_needed"`
	Pending int64 `json:"pending"`
}

type fetched struct {
	existing   *existingPost
	collection *scraper.Collection
	campaigns  []analytics.Campaign
	enrichment *enrichmentCheck
	sources    []SourceResult
}

// fetchAll runs the four lookups concurrently. Every source settles on its
// own: a failure is recorded and never cancels the others.
func (o *Orchestrator) fetchAll(ctx context.Context, r *run, meta *analytics.PostMetadata) *fetched {
	out := &fetched{sources: make([]SourceResult, 4)}

	fctx := ctx
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}

	var g errgroup.Group
	settle := func(i int, source string, fn func(context.Context) error) {
		g.Go(func() error {
			start := o.now()
			err := o.guard(fctx, source, fn)
			res := SourceResult{Source: source, Success: err == nil, DurationMS: o.now().Sub(start).Milliseconds()}
			if err != nil {
				res.Error = err.Error()
				r.warn(fmt.Sprintf("%s: %v", source, err))
				o.metrics.RecordSourceFailure(ctx, source)
				o.logger.Warn("Fetch source failed", zap.String("source", source), zap.Error(err))
			}
			out.sources[i] = res
			return nil
		})
	}

	settle(0, SourceExistingPost, func(ctx context.Context) error {
		existing, err := o.loadExisting(ctx, meta.CanonicalURL)
		out.existing = existing
		return err
	})
	settle(1, SourceScraper, func(ctx context.Context) error {
		if o.collector == nil {
			return analytics.ErrUpstreamUnavailable.WithMessage("scraper not configured")
		}
		c, err := o.collector.CollectReactions(ctx, meta.CanonicalURL)
		out.collection = c
		return err
	})
	settle(2, SourceAdPlatform, func(ctx context.Context) error {
		if o.platform == nil {
			return analytics.ErrUpstreamUnavailable.WithMessage("ad platform not configured")
		}
		campaigns, err := o.platform.GetCampaigns(ctx, o.accountID)
		out.campaigns = campaigns
		return err
	})
	settle(3, SourceProfileEnrichment, func(ctx context.Context) error {
		stats, err := o.persons.EnrichmentStats(ctx)
		if err != nil {
			return err
		}
		out.enrichment = &enrichmentCheck{Needed: stats.Pending > 0, Pending: stats.Pending}
		return nil
	})
	_ = g.Wait()

	ok := 0
	for _, s := range out.sources {
		if s.Success {
			ok++
		}
	}
	o.logger.Info("Parallel fetch completed",
		zap.Int("successful", ok), zap.Int("sources", len(out.sources)))
	return out
}

// guard runs one fetch inside its own span and turns a panic into an error.
func (o *Orchestrator) guard(ctx context.Context, source string, fn func(context.Context) error) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "analysis.fetch."+source, telemetry.SpanAttrUpstream, source)
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", source, rec)
		}
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()
	return fn(ctx)
}

// loadExisting returns the stored post and its engagements, or nil when the
// post was never analyzed.
func (o *Orchestrator) loadExisting(ctx context.Context, url string) (*existingPost, error) {
	post, err := o.posts.FindByURL(ctx, url)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find post: %w", err)
	}
	engagements, err := o.engagements.FindByPost(ctx, post.ID)
	if err != nil {
		return &existingPost{post: post}, fmt.Errorf("find engagements: %w", err)
	}
	return &existingPost{post: post, engagements: engagements}, nil
}

func elapsedMS(start, end time.Time) int64 {
	return end.Sub(start).Milliseconds()
}
