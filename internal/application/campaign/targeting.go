package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Target is one targeted URN with its label.
type Target struct {
	URN  string `json:"urn"`
	Name string `json:"name"`
}

// Audience is a campaign's targeting grouped by what it describes.
type Audience struct {
	Industries          []Target `json:"industries"`
	Seniorities         []Target `json:"seniorities"`
	JobFunctions        []Target `json:"job_functions"`
	Locations           []Target `json:"locations"`
	Companies           []Target `json:"companies"`
	JobTitles           []Target `json:"job_titles"`
	ExcludedSeniorities []string `json:"excluded_seniorities,omitempty"`
}

func newAudience() *Audience {
	return &Audience{
		Industries:   []Target{},
		Seniorities:  []Target{},
		JobFunctions: []Target{},
		Locations:    []Target{},
		Companies:    []Target{},
		JobTitles:    []Target{},
	}
}

// bucket returns the slice a facet's targets belong in, or nil for facets
// that are not reported.
func (a *Audience) bucket(f analytics.FacetType) *[]Target {
	switch {
	case f == analytics.FacetIndustries:
		return &a.Industries
	case f == analytics.FacetSeniorities:
		return &a.Seniorities
	case f == analytics.FacetJobFunctions:
		return &a.JobFunctions
	case f == analytics.FacetLocations || f == analytics.FacetProfileLocations:
		return &a.Locations
	case f.IsCompany():
		return &a.Companies
	case f.IsTitle():
		return &a.JobTitles
	}
	return nil
}

// TargetingResolver turns campaign targeting into labelled audiences.
type TargetingResolver struct {
	campaigns analytics.CampaignRepository
	platform  analytics.AdPlatform
	accountID string
	resolver  analytics.URNResolver
	logger    *zap.Logger
}

// NewTargetingResolver creates a TargetingResolver. Campaigns missing from
// the store are looked up in accountID through platform when it is set.
func NewTargetingResolver(
	campaigns analytics.CampaignRepository,
	platform analytics.AdPlatform,
	accountID string,
	resolver analytics.URNResolver,
	logger *zap.Logger,
) *TargetingResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetingResolver{campaigns: campaigns, platform: platform, accountID: accountID, resolver: resolver, logger: logger}
}

// ResolveCampaignTargeting labels every included facet of the campaign and
// the seniorities it excludes.
func (t *TargetingResolver) ResolveCampaignTargeting(ctx context.Context, c *analytics.Campaign) *Audience {
	a := newAudience()
	for _, g := range c.Targeting.Include {
		dst := a.bucket(g.FacetType)
		if dst == nil {
			continue
		}
		for _, u := range g.URNs {
			*dst = append(*dst, Target{URN: u, Name: t.resolver.Resolve(ctx, u)})
		}
	}
	for _, u := range c.Targeting.ExcludeURNs(func(f analytics.FacetType) bool { return f == analytics.FacetSeniorities }) {
		a.ExcludedSeniorities = append(a.ExcludedSeniorities, t.resolver.Resolve(ctx, u))
	}
	return a
}

// CampaignTargeting loads a campaign and resolves its targeting.
func (t *TargetingResolver) CampaignTargeting(ctx context.Context, campaignID string) (*Audience, error) {
	c, err := t.find(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return t.ResolveCampaignTargeting(ctx, c), nil
}

func (t *TargetingResolver) find(ctx context.Context, campaignID string) (*analytics.Campaign, error) {
	c, err := t.campaigns.FindByID(ctx, campaignID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, shared.ErrNotFound) || t.platform == nil {
		return nil, err
	}
	campaigns, lerr := t.platform.GetCampaigns(ctx, t.accountID)
	if lerr != nil {
		return nil, fmt.Errorf("list campaigns: %w", analytics.ErrUpstreamUnavailable.Wrap(lerr))
	}
	for i := range campaigns {
		if campaigns[i].ID == campaignID {
			return &campaigns[i], nil
		}
	}
	return nil, err
}

// AggregateTargeting merges the audiences of several campaigns, keeping one
// target per label. Campaigns that cannot be found are skipped.
func (t *TargetingResolver) AggregateTargeting(ctx context.Context, campaignIDs []string) (*Audience, error) {
	out := newAudience()
	seen := map[*[]Target]map[string]struct{}{}
	excluded := map[string]struct{}{}
	merge := func(dst *[]Target, src []Target) {
		names, ok := seen[dst]
		if !ok {
			names = map[string]struct{}{}
			seen[dst] = names
		}
		for _, tg := range src {
			if _, dup := names[tg.Name]; dup {
				continue
			}
			names[tg.Name] = struct{}{}
			*dst = append(*dst, tg)
		}
	}

	for _, id := range campaignIDs {
		c, err := t.find(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			t.logger.Warn("Campaign not found for targeting", zap.String("campaign_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		a := t.ResolveCampaignTargeting(ctx, c)
		merge(&out.Industries, a.Industries)
		merge(&out.Seniorities, a.Seniorities)
		merge(&out.JobFunctions, a.JobFunctions)
		merge(&out.Locations, a.Locations)
		merge(&out.Companies, a.Companies)
		merge(&out.JobTitles, a.JobTitles)
		for _, s := range a.ExcludedSeniorities {
			if _, dup := excluded[s]; !dup {
				excluded[s] = struct{}{}
				out.ExcludedSeniorities = append(out.ExcludedSeniorities, s)
			}
		}
	}
	return out, nil
}
