package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	titleLength   = 100
	contentLength = 500
	sharePageSize = 50
	maxSharePages = 20
)

// PostSource is the part of the ad platform the syncer reads.
type PostSource interface {
	analytics.CreativeSource
	GetOrganizationShares(ctx context.Context, orgID string, start, count int) ([]analytics.Share, error)
}

// SyncResult counts the posts written by one sync.
type SyncResult struct {
	CampaignID   string      `json:"campaign_id,omitempty"`
	PostsCreated int         `json:"posts_created"`
	PostsUpdated int         `json:"posts_updated"`
	Skipped      int         `json:"skipped"`
	PostIDs      []string    `json:"post_ids"`
	Errors       []SyncError `json:"errors,omitempty"`
}

// SyncError is a failure that did not stop the sync.
type SyncError struct {
	CampaignID string `json:"campaign_id,omitempty"`
	Item       string `json:"item,omitempty"`
	Error      string `json:"error"`
}

// MultiSyncResult aggregates a sync over several campaigns.
type MultiSyncResult struct {
	TotalCampaigns      int                `json:"total_campaigns"`
	SuccessfulCampaigns int                `json:"successful_campaigns"`
	TotalPostsCreated   int                `json:"total_posts_created"`
	TotalPostsUpdated   int                `json:"total_posts_updated"`
	Performance         *PerformanceResult `json:"performance,omitempty"`
	Errors              []SyncError        `json:"errors"`
}

// Syncer creates post records from campaign creatives and organic shares,
// and stores campaign reporting when a performance source is set.
type Syncer struct {
	source      PostSource
	posts       analytics.PostRepository
	campaigns   analytics.CampaignRepository
	linker      *Linker
	performance analytics.PerformanceSource
	reports     analytics.AnalyticsRepository
	logger      *zap.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(source PostSource, posts analytics.PostRepository, campaigns analytics.CampaignRepository, linker *Linker, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{source: source, posts: posts, campaigns: campaigns, linker: linker, logger: logger}
}

// WithPerformance makes account syncs also store daily reporting rows and
// audience breakdowns read from source.
func (s *Syncer) WithPerformance(source analytics.PerformanceSource, reports analytics.AnalyticsRepository) *Syncer {
	s.performance = source
	s.reports = reports
	return s
}

type postContent struct {
	url         string
	title       string
	text        string
	description string
	author      string
	organic     bool
	postedAt    *time.Time
}

// SyncCampaignPosts creates or updates a post for every creative of the
// campaign that references one, and links it to the campaign.
func (s *Syncer) SyncCampaignPosts(ctx context.Context, campaign *analytics.Campaign) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "campaign.sync_posts", telemetry.SpanAttrCampaignID, campaign.ID)
	defer span.End()

	creatives, err := s.source.GetCampaignCreatives(ctx, campaign.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, analytics.ErrUpstreamUnavailable.Wrap(err)
	}
	if err := s.campaigns.UpsertCreatives(ctx, creatives...); err != nil {
		s.logger.Warn("Storing creatives failed", zap.String("campaign_id", campaign.ID), zap.Error(err))
	}

	res := &SyncResult{CampaignID: campaign.ID, PostIDs: []string{}}
	for _, c := range creatives {
		url := c.PostURL()
		if url == "" {
			res.Skipped++
			s.logger.Debug("Creative references no post", zap.String("creative_id", c.ID))
			continue
		}
		post, created, err := s.upsertPost(ctx, postContent{url: url, title: c.Title, text: c.Text})
		if err != nil {
			res.Errors = append(res.Errors, SyncError{CampaignID: campaign.ID, Item: c.ID, Error: err.Error()})
			continue
		}
		if _, err := s.linker.LinkPostToCampaigns(ctx, post.ID, []string{campaign.ID}, analytics.AssociationAuto); err != nil {
			res.Errors = append(res.Errors, SyncError{CampaignID: campaign.ID, Item: c.ID, Error: err.Error()})
		}
		res.count(post, created)
	}

	s.logger.Info("Campaign post sync complete",
		zap.String("campaign_id", campaign.ID),
		zap.Int("created", res.PostsCreated),
		zap.Int("updated", res.PostsUpdated))
	return res, nil
}

// SyncMultipleCampaigns syncs each campaign in turn. A failing campaign is
// recorded and the rest still run.
func (s *Syncer) SyncMultipleCampaigns(ctx context.Context, campaigns []analytics.Campaign) *MultiSyncResult {
	out := &MultiSyncResult{TotalCampaigns: len(campaigns), Errors: []SyncError{}}
	for i := range campaigns {
		if ctx.Err() != nil {
			out.Errors = append(out.Errors, SyncError{CampaignID: campaigns[i].ID, Error: ctx.Err().Error()})
			continue
		}
		res, err := s.SyncCampaignPosts(ctx, &campaigns[i])
		if err != nil {
			out.Errors = append(out.Errors, SyncError{CampaignID: campaigns[i].ID, Error: err.Error()})
			continue
		}
		out.SuccessfulCampaigns++
		out.TotalPostsCreated += res.PostsCreated
		out.TotalPostsUpdated += res.PostsUpdated
		out.Errors = append(out.Errors, res.Errors...)
	}
	return out
}

// SyncOrganizationShares records the organization's organic shares as posts.
func (s *Syncer) SyncOrganizationShares(ctx context.Context, orgID, orgName string) (*SyncResult, error) {
	res := &SyncResult{PostIDs: []string{}}
	for page := 0; page < maxSharePages; page++ {
		shares, err := s.source.GetOrganizationShares(ctx, orgID, page*sharePageSize, sharePageSize)
		if err != nil {
			if page == 0 {
				return nil, analytics.ErrUpstreamUnavailable.Wrap(err)
			}
			res.Errors = append(res.Errors, SyncError{Item: fmt.Sprintf("page %d", page), Error: err.Error()})
			break
		}
		for _, sh := range shares {
			if sh.ActivityURN == "" {
				res.Skipped++
				continue
			}
			content := postContent{
				url:     analytics.FeedUpdateURL(sh.ActivityURN),
				title:   sh.Title,
				text:    sh.Text,
				author:  orgName,
				organic: true,
			}
			if !sh.CreatedAt.IsZero() {
				t := sh.CreatedAt
				content.postedAt = &t
			}
			post, created, err := s.upsertPost(ctx, content)
			if err != nil {
				res.Errors = append(res.Errors, SyncError{Item: sh.ID, Error: err.Error()})
				continue
			}
			res.count(post, created)
		}
		if len(shares) < sharePageSize {
			break
		}
	}
	s.logger.Info("Organization share sync complete",
		zap.String("org_id", orgID),
		zap.Int("created", res.PostsCreated),
		zap.Int("updated", res.PostsUpdated))
	return res, nil
}

// upsertPost writes the content onto the post stored under its canonical URL
// and reports whether the post is new.
func (s *Syncer) upsertPost(ctx context.Context, c postContent) (*analytics.Post, bool, error) {
	canonical := analytics.CanonicalPostURL(c.url)
	post, err := s.posts.FindByURL(ctx, canonical)
	created := false
	switch {
	case errors.Is(err, shared.ErrNotFound):
		post = analytics.NewPost(canonical)
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("find post: %w", err)
	}

	post.Title = c.title
	if post.Title == "" {
		post.Title = truncate(c.text, titleLength)
	}
	post.Content = truncate(c.text, contentLength)
	if c.description != "" {
		post.Description = c.description
	}
	if c.author != "" {
		post.AuthorName = c.author
	}
	if c.postedAt != nil && post.PostedAt == nil {
		post.PostedAt = c.postedAt
	}
	post.IsOrganic = c.organic
	post.UpdatedAt = time.Now()

	if err := s.posts.Upsert(ctx, post); err != nil {
		return nil, false, fmt.Errorf("upsert post: %w", err)
	}
	return post, created, nil
}

func (r *SyncResult) count(post *analytics.Post, created bool) {
	if created {
		r.PostsCreated++
	} else {
		r.PostsUpdated++
	}
	r.PostIDs = append(r.PostIDs, post.ID.String())
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
