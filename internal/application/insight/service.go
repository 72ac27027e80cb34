package insight

import (
	"context"
	"fmt"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/google/uuid"
)

// Service loads the persisted data of a post and generates its insights.
type Service struct {
	posts       analytics.PostRepository
	links       analytics.PostCampaignRepository
	campaigns   analytics.CampaignRepository
	engagements analytics.EngagementRepository
	reports     analytics.AnalyticsRepository
	generator   *Generator
}

// NewService creates a Service.
func NewService(
	posts analytics.PostRepository,
	links analytics.PostCampaignRepository,
	campaigns analytics.CampaignRepository,
	engagements analytics.EngagementRepository,
	reports analytics.AnalyticsRepository,
	generator *Generator,
) *Service {
	return &Service{
		posts:       posts,
		links:       links,
		campaigns:   campaigns,
		engagements: engagements,
		reports:     reports,
		generator:   generator,
	}
}

// ForPost generates the insights of a stored post from its linked campaigns.
func (s *Service) ForPost(ctx context.Context, postID uuid.UUID) (*Report, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	in, err := s.load(ctx, post)
	if err != nil {
		return nil, err
	}
	return s.generator.Generate(ctx, in), nil
}

func (s *Service) load(ctx context.Context, post *analytics.Post) (Input, error) {
	in := Input{Post: post}

	links, err := s.links.FindByPost(ctx, post.ID)
	if err != nil {
		return in, fmt.Errorf("load campaign links: %w", err)
	}
	ids := make([]string, 0, len(links)+1)
	seen := map[string]struct{}{}
	if post.HasPrimaryCampaign() {
		ids = append(ids, post.PrimaryCampaignID)
		seen[post.PrimaryCampaignID] = struct{}{}
	}
	for _, l := range links {
		if _, ok := seen[l.CampaignID]; ok {
			continue
		}
		seen[l.CampaignID] = struct{}{}
		ids = append(ids, l.CampaignID)
	}

	if len(ids) > 0 {
		if in.Campaigns, err = s.campaigns.FindByIDs(ctx, ids); err != nil {
			return in, fmt.Errorf("load campaigns: %w", err)
		}
		if in.Analytics, err = s.reports.FindByCampaigns(ctx, ids); err != nil {
			return in, fmt.Errorf("load campaign analytics: %w", err)
		}
	}
	if in.Engagements, err = s.engagements.FindByPost(ctx, post.ID); err != nil {
		return in, fmt.Errorf("load engagements: %w", err)
	}
	return in, nil
}
