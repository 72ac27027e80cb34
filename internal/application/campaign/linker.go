// Package campaign links posts to the ad campaigns that promoted them, syncs
// promoted and organic posts from the ad platform and resolves campaign
// targeting into readable audiences.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// searchParallelism bounds concurrent creative lookups during a search.
const searchParallelism = 4

// LinkedCampaign is a campaign linked to a post.
type LinkedCampaign struct {
	Campaign        analytics.Campaign        `json:"campaign"`
	AssociationType analytics.AssociationType `json:"association_type"`
	Confidence      float64                   `json:"confidence"`
	Primary         bool                      `json:"primary"`
	LinkedAt        time.Time                 `json:"linked_at"`
}

// LinkedPost is a post linked to a campaign.
type LinkedPost struct {
	Post            *analytics.Post           `json:"post"`
	AssociationType analytics.AssociationType `json:"association_type"`
	Confidence      float64                   `json:"confidence"`
}

// CampaignMatch is a campaign whose creatives promote a given post.
type CampaignMatch struct {
	Campaign   analytics.Campaign `json:"campaign"`
	CreativeID string             `json:"creative_id"`
	Confidence float64            `json:"confidence"`
}

// Linker maintains the post to campaign junction and the primary campaign of
// each post.
type Linker struct {
	posts     analytics.PostRepository
	links     analytics.PostCampaignRepository
	campaigns analytics.CampaignRepository
	creatives analytics.CreativeSource
	policy    analytics.PrimaryLinkPolicy
	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithCreativeSource enables live creative lookups in SearchCampaignsByPostURL.
func WithCreativeSource(s analytics.CreativeSource) LinkerOption {
	return func(l *Linker) { l.creatives = s }
}

// WithPrimaryLinkPolicy sets how later links compete for the primary campaign.
func WithPrimaryLinkPolicy(p analytics.PrimaryLinkPolicy) LinkerOption {
	return func(l *Linker) { l.policy = p }
}

// WithEventPublisher publishes PostCampaignLinkedEvent.
func WithEventPublisher(p shared.EventPublisher) LinkerOption {
	return func(l *Linker) {
		if p != nil {
			l.publisher = p
		}
	}
}

// WithLinkerLogger sets the logger.
func WithLinkerLogger(lg *zap.Logger) LinkerOption {
	return func(l *Linker) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLinker creates a Linker using the first-write-wins primary policy.
func NewLinker(posts analytics.PostRepository, links analytics.PostCampaignRepository, campaigns analytics.CampaignRepository, opts ...LinkerOption) *Linker {
	l := &Linker{
		posts:     posts,
		links:     links,
		campaigns: campaigns,
		policy:    analytics.PrimaryFirstWriteWins,
		publisher: shared.NopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LinkPostToCampaigns links campaignIDs to a post. Relinking an existing pair
// updates it in place. The first campaign competes for the primary slot.
func (l *Linker) LinkPostToCampaigns(ctx context.Context, postID uuid.UUID, campaignIDs []string, assoc analytics.AssociationType) (int, error) {
	links := make([]analytics.PostCampaignLink, 0, len(campaignIDs))
	seen := make(map[string]struct{}, len(campaignIDs))
	for _, id := range campaignIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, analytics.PostCampaignLink{
			PostID:          postID,
			CampaignID:      id,
			AssociationType: assoc,
			Confidence:      1,
			CreatedAt:       l.now(),
		})
	}
	if len(links) == 0 {
		return 0, shared.ErrInvalidInput.WithMessage("at least one campaign id is required")
	}
	if err := l.link(ctx, postID, links); err != nil {
		return 0, err
	}
	return len(links), nil
}

// LinkCorrelation stores every matched campaign of a correlation as a
// correlated link carrying its score.
func (l *Linker) LinkCorrelation(ctx context.Context, post *analytics.Post, match *analytics.MatchResult) error {
	if post == nil || !match.Matched() {
		return nil
	}
	links := make([]analytics.PostCampaignLink, 0, len(match.Campaigns))
	for _, c := range match.Campaigns {
		links = append(links, analytics.PostCampaignLink{
			PostID:          post.ID,
			CampaignID:      c.CampaignID,
			AssociationType: analytics.AssociationCorrelated,
			Confidence:      c.Score,
			CreatedAt:       l.now(),
		})
	}
	return l.link(ctx, post.ID, links)
}

func (l *Linker) link(ctx context.Context, postID uuid.UUID, links []analytics.PostCampaignLink) error {
	post, err := l.posts.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("find post %s: %w", postID, err)
	}
	current, err := l.primaryLink(ctx, post)
	if err != nil {
		return err
	}

	if err := l.links.Upsert(ctx, links...); err != nil {
		return fmt.Errorf("upsert campaign links: %w", err)
	}

	primary := current
	for i := range links {
		if l.policy.ShouldReplacePrimary(primary, links[i]) {
			primary = &links[i]
		}
	}
	changed := primary != nil && (current == nil || primary.CampaignID != current.CampaignID)
	if changed {
		if err := l.posts.SetPrimaryCampaign(ctx, postID, primary.CampaignID); err != nil {
			return fmt.Errorf("set primary campaign: %w", err)
		}
	}

	for _, link := range links {
		isPrimary := changed && link.CampaignID == primary.CampaignID
		event := analytics.NewPostCampaignLinkedEvent(postID.String(), link.CampaignID, link.AssociationType, isPrimary)
		if err := l.publisher.Publish(ctx, event); err != nil {
			l.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}
	logger.L(ctx).Info("Linked campaigns to post",
		zap.String("post_id", postID.String()),
		zap.Int("campaigns", len(links)),
		zap.Bool("primary_changed", changed))
	return nil
}

// primaryLink returns the link backing the post's primary campaign, or nil
// when the post has none.
func (l *Linker) primaryLink(ctx context.Context, post *analytics.Post) (*analytics.PostCampaignLink, error) {
	if !post.HasPrimaryCampaign() {
		return nil, nil
	}
	existing, err := l.links.FindByPost(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("find campaign links: %w", err)
	}
	for i := range existing {
		if existing[i].CampaignID == post.PrimaryCampaignID {
			return &existing[i], nil
		}
	}
	return &analytics.PostCampaignLink{PostID: post.ID, CampaignID: post.PrimaryCampaignID}, nil
}

// Unlink removes a link. When it backed the primary campaign, the most
// confident remaining link becomes primary.
func (l *Linker) Unlink(ctx context.Context, postID uuid.UUID, campaignID string) error {
	post, err := l.posts.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("find post %s: %w", postID, err)
	}
	if err := l.links.Delete(ctx, postID, campaignID); err != nil {
		return fmt.Errorf("delete campaign link: %w", err)
	}
	if post.PrimaryCampaignID != campaignID {
		return nil
	}

	remaining, err := l.links.FindByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("find campaign links: %w", err)
	}
	next := ""
	sort.SliceStable(remaining, func(i, j int) bool { return remaining[i].Confidence > remaining[j].Confidence })
	if len(remaining) > 0 {
		next = remaining[0].CampaignID
	}
	return l.posts.SetPrimaryCampaign(ctx, postID, next)
}

// GetPostCampaigns lists the campaigns linked to a post, primary first.
func (l *Linker) GetPostCampaigns(ctx context.Context, postID uuid.UUID) ([]LinkedCampaign, error) {
	post, err := l.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	links, err := l.links.FindByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("find campaign links: %w", err)
	}
	if len(links) == 0 {
		return []LinkedCampaign{}, nil
	}

	ids := make([]string, len(links))
	for i, link := range links {
		ids[i] = link.CampaignID
	}
	campaigns, err := l.campaigns.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find campaigns: %w", err)
	}
	byID := make(map[string]analytics.Campaign, len(campaigns))
	for _, c := range campaigns {
		byID[c.ID] = c
	}

	out := make([]LinkedCampaign, 0, len(links))
	for _, link := range links {
		c, ok := byID[link.CampaignID]
		if !ok {
			c = analytics.Campaign{ID: link.CampaignID}
		}
		out = append(out, LinkedCampaign{
			Campaign:        c,
			AssociationType: link.AssociationType,
			Confidence:      link.Confidence,
			Primary:         link.CampaignID == post.PrimaryCampaignID,
			LinkedAt:        link.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Primary && !out[j].Primary })
	return out, nil
}

// GetCampaignPosts lists the posts linked to a campaign. Links to posts that
// no longer exist are skipped.
func (l *Linker) GetCampaignPosts(ctx context.Context, campaignID string) ([]LinkedPost, error) {
	links, err := l.links.FindByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("find campaign links: %w", err)
	}
	out := make([]LinkedPost, 0, len(links))
	for _, link := range links {
		post, err := l.posts.FindByID(ctx, link.PostID)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find post %s: %w", link.PostID, err)
		}
		out = append(out, LinkedPost{Post: post, AssociationType: link.AssociationType, Confidence: link.Confidence})
	}
	return out, nil
}

// SearchCampaignsByPostURL finds campaigns whose creatives promote postURL.
// Stored creatives are searched first; the ad platform is only asked when
// none of them reference the post.
func (l *Linker) SearchCampaignsByPostURL(ctx context.Context, accountID, postURL string) ([]CampaignMatch, error) {
	if _, err := analytics.ExtractPostMetadata(postURL); err != nil {
		return nil, err
	}
	stored, err := l.campaigns.FindCreativesReferencing(ctx, analytics.ExtractPostID(postURL))
	if err != nil {
		return nil, fmt.Errorf("find referencing creatives: %w", err)
	}
	if matches, err := l.matchesFor(ctx, postURL, stored); err != nil || len(matches) > 0 {
		return matches, err
	}
	if l.creatives == nil {
		return []CampaignMatch{}, nil
	}

	campaigns, err := l.campaigns.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	found := make([][]analytics.Creative, len(campaigns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchParallelism)
	for i := range campaigns {
		g.Go(func() error {
			creatives, err := l.creatives.GetCampaignCreatives(gctx, campaigns[i].ID)
			if err != nil {
				l.logger.Warn("Could not fetch creatives",
					zap.String("campaign_id", campaigns[i].ID), zap.Error(err))
				return nil
			}
			found[i] = creatives
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []analytics.Creative
	for _, creatives := range found {
		all = append(all, creatives...)
	}
	return l.matchesFor(ctx, postURL, all)
}

func (l *Linker) matchesFor(ctx context.Context, postURL string, creatives []analytics.Creative) ([]CampaignMatch, error) {
	creativeByCampaign := map[string]string{}
	var ids []string
	for _, c := range creatives {
		u := c.PostURL()
		if u == "" || !(u == postURL || analytics.URLsMatch(u, postURL)) {
			continue
		}
		if _, ok := creativeByCampaign[c.CampaignID]; ok {
			continue
		}
		creativeByCampaign[c.CampaignID] = c.ID
		ids = append(ids, c.CampaignID)
	}
	if len(ids) == 0 {
		return []CampaignMatch{}, nil
	}
	campaigns, err := l.campaigns.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find campaigns: %w", err)
	}
	out := make([]CampaignMatch, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, CampaignMatch{Campaign: c, CreativeID: creativeByCampaign[c.ID], Confidence: 1.0})
	}
	return out, nil
}
