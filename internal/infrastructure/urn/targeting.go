package urn

import (
	"context"
	"strings"
	"unicode"

	"github.com/campaignlens/backend/internal/domain/analytics"
)

// ResolvedValue is one targeted URN with its label.
type ResolvedValue struct {
	URN     string `json:"urn"`
	Decoded string `json:"decoded"`
}

// ResolvedFacet is a facet group ready for display.
type ResolvedFacet struct {
	FacetType string          `json:"facet_type"`
	FacetURN  string          `json:"facet_urn"`
	Values    []ResolvedValue `json:"values"`
}

// ResolvedTargeting is TargetingCriteria with every URN labelled.
type ResolvedTargeting struct {
	Include []ResolvedFacet `json:"include"`
	Exclude []ResolvedFacet `json:"exclude"`
}

const facetURNPrefix = "urn:li:adTargetingFacet:"

var facetDisplayNames = map[analytics.FacetType]string{
	analytics.FacetTitles:           "Job Titles",
	analytics.FacetEmployers:        "Companies",
	analytics.FacetIndustries:       "Industries",
	analytics.FacetProfileLocations: "Locations",
	analytics.FacetLocations:        "Locations",
	analytics.FacetExperience:       "Experience Level",
	analytics.FacetRevenue:          "Company Revenue",
	analytics.FacetCompanySizes:     "Company Size",
	"companySizes":                  "Company Size",
	analytics.FacetInterfaceLocales: "Languages",
	analytics.FacetSkills:           "Skills",
	analytics.FacetSchools:          "Schools",
	analytics.FacetDegrees:          "Degrees",
	analytics.FacetFieldsOfStudy:    "Fields of Study",
	analytics.FacetSeniorities:      "Seniority Level",
	analytics.FacetJobFunctions:     "Job Functions",
	analytics.FacetAudienceSegments: "Audience Segments",
}

// FacetDisplayName returns the label of a facet type. Unknown facets are
// split at case changes, e.g. memberBehaviors becomes "Member Behaviors".
func FacetDisplayName(facet analytics.FacetType) string {
	if name, ok := facetDisplayNames[facet]; ok {
		return name
	}
	var b strings.Builder
	for i, r := range string(facet) {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ProcessTargetingCriteria parses a raw targeting document once and labels
// every URN in it.
func (r *Resolver) ProcessTargetingCriteria(ctx context.Context, raw []byte) (analytics.TargetingCriteria, ResolvedTargeting, error) {
	tc, err := analytics.ParseTargetingCriteria(raw)
	if err != nil {
		return tc, ResolvedTargeting{}, err
	}
	return tc, r.ResolveCriteria(ctx, tc), nil
}

// ResolveCriteria labels already parsed criteria.
func (r *Resolver) ResolveCriteria(ctx context.Context, tc analytics.TargetingCriteria) ResolvedTargeting {
	var urns []string
	for _, g := range append(append([]analytics.FacetGroup{}, tc.Include...), tc.Exclude...) {
		urns = append(urns, g.URNs...)
	}
	labels := r.ResolveMany(ctx, urns)

	return ResolvedTargeting{
		Include: resolveGroups(tc.Include, labels),
		Exclude: resolveGroups(tc.Exclude, labels),
	}
}

func resolveGroups(groups []analytics.FacetGroup, labels map[string]string) []ResolvedFacet {
	out := make([]ResolvedFacet, 0, len(groups))
	for _, g := range groups {
		facet := ResolvedFacet{
			FacetType: FacetDisplayName(g.FacetType),
			FacetURN:  facetURNPrefix + string(g.FacetType),
			Values:    make([]ResolvedValue, 0, len(g.URNs)),
		}
		for _, u := range g.URNs {
			facet.Values = append(facet.Values, ResolvedValue{URN: u, Decoded: labels[u]})
		}
		out = append(out, facet)
	}
	return out
}
