package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLabels = staticResolver{
	"urn:li:industry:4":          "Software Development",
	"urn:li:industry:96":         "IT Services",
	"urn:li:seniority:6":         "Director",
	"urn:li:seniority:3":         "Entry",
	"urn:li:organization:1035":   "Microsoft",
	"urn:li:title:9":             "Data Engineer",
	"urn:li:geo:103644278":       "United States",
	"urn:li:function:8":          "Engineering",
	"urn:li:skill:17":            "Go",
	"urn:li:seniority:10":        "Owner",
	"urn:li:organization:999999": "Microsoft",
}

func targetedCampaign(id string, include ...analytics.FacetGroup) *analytics.Campaign {
	return &analytics.Campaign{
		ID:        id,
		AccountID: "acc",
		Name:      "Campaign " + id,
		Targeting: analytics.TargetingCriteria{
			Include: include,
			Exclude: []analytics.FacetGroup{{FacetType: analytics.FacetSeniorities, URNs: []string{"urn:li:seniority:3"}}},
		},
	}
}

func TestTargetingResolver_ResolveCampaignTargeting(t *testing.T) {
	r := NewTargetingResolver(nil, nil, "acc", testLabels, nil)
	c := targetedCampaign("c1",
		analytics.FacetGroup{FacetType: analytics.FacetIndustries, URNs: []string{"urn:li:industry:4"}},
		analytics.FacetGroup{FacetType: analytics.FacetEmployers, URNs: []string{"urn:li:organization:1035"}},
		analytics.FacetGroup{FacetType: "jobTitles", URNs: []string{"urn:li:title:9"}},
		analytics.FacetGroup{FacetType: analytics.FacetProfileLocations, URNs: []string{"urn:li:geo:103644278"}},
		analytics.FacetGroup{FacetType: analytics.FacetSkills, URNs: []string{"urn:li:skill:17"}},
	)

	got := r.ResolveCampaignTargeting(context.Background(), c)

	want := &Audience{
		Industries:          []Target{{URN: "urn:li:industry:4", Name: "Software Development"}},
		Seniorities:         []Target{},
		JobFunctions:        []Target{},
		Locations:           []Target{{URN: "urn:li:geo:103644278", Name: "United States"}},
		Companies:           []Target{{URN: "urn:li:organization:1035", Name: "Microsoft"}},
		JobTitles:           []Target{{URN: "urn:li:title:9", Name: "Data Engineer"}},
		ExcludedSeniorities: []string{"Entry"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ResolveCampaignTargeting() mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetingResolver_AggregateTargeting(t *testing.T) {
	ctx := context.Background()
	repos := newRepos(t)
	saveCampaigns(t, repos,
		targetedCampaign("c1",
			analytics.FacetGroup{FacetType: analytics.FacetIndustries, URNs: []string{"urn:li:industry:4", "urn:li:industry:96"}},
			analytics.FacetGroup{FacetType: analytics.FacetSeniorities, URNs: []string{"urn:li:seniority:6"}},
			analytics.FacetGroup{FacetType: analytics.FacetEmployers, URNs: []string{"urn:li:organization:1035"}},
		),
		targetedCampaign("c2",
			analytics.FacetGroup{FacetType: analytics.FacetIndustries, URNs: []string{"urn:li:industry:4"}},
			analytics.FacetGroup{FacetType: analytics.FacetJobFunctions, URNs: []string{"urn:li:function:8"}},
			analytics.FacetGroup{FacetType: analytics.FacetEmployers, URNs: []string{"urn:li:organization:999999"}},
		),
	)
	r := NewTargetingResolver(repos.Campaigns, nil, "acc", testLabels, nil)

	got, err := r.AggregateTargeting(ctx, []string{"c1", "c2", "missing"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Software Development", "IT Services"}, names(got.Industries))
	assert.Equal(t, []string{"Director"}, names(got.Seniorities))
	assert.Equal(t, []string{"Engineering"}, names(got.JobFunctions))
	assert.Equal(t, []string{"Microsoft"}, names(got.Companies))
	assert.Equal(t, []string{"Entry"}, got.ExcludedSeniorities)
	assert.Empty(t, got.Locations)
}

func TestTargetingResolver_CampaignTargeting(t *testing.T) {
	ctx := context.Background()

	t.Run("platform fallback", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return([]analytics.Campaign{
			*targetedCampaign("c9", analytics.FacetGroup{FacetType: analytics.FacetLocations, URNs: []string{"urn:li:geo:103644278"}}),
		}, nil)
		r := NewTargetingResolver(repos.Campaigns, platform, "acc", testLabels, nil)

		got, err := r.CampaignTargeting(ctx, "c9")
		require.NoError(t, err)
		assert.Equal(t, []string{"United States"}, names(got.Locations))

		_, err = r.CampaignTargeting(ctx, "c10")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("platform failure", func(t *testing.T) {
		repos := newRepos(t)
		platform := &MockPlatform{}
		platform.On("GetCampaigns", mock.Anything, "acc").Return(nil, errors.New("boom"))
		r := NewTargetingResolver(repos.Campaigns, platform, "acc", testLabels, nil)

		_, err := r.CampaignTargeting(ctx, "c9")
		assert.ErrorIs(t, err, analytics.ErrUpstreamUnavailable)
	})

	t.Run("stored campaign", func(t *testing.T) {
		repos := newRepos(t)
		saveCampaigns(t, repos, targetedCampaign("c1"))
		r := NewTargetingResolver(repos.Campaigns, nil, "acc", testLabels, nil)

		got, err := r.CampaignTargeting(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"Entry"}, got.ExcludedSeniorities)
		assert.Empty(t, got.Industries)
	})
}

func names(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, tg := range targets {
		out = append(out, tg.Name)
	}
	return out
}
