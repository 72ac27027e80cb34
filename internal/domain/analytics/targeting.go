package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FacetType is a targeting dimension.
type FacetType string

const (
	FacetEmployers        FacetType = "employers"
	FacetTitles           FacetType = "titles"
	FacetIndustries       FacetType = "industries"
	FacetSeniorities      FacetType = "seniorities"
	FacetJobFunctions     FacetType = "jobFunctions"
	FacetLocations        FacetType = "locations"
	FacetProfileLocations FacetType = "profileLocations"
	FacetSkills           FacetType = "skills"
	FacetSchools          FacetType = "schools"
	FacetDegrees          FacetType = "degrees"
	FacetFieldsOfStudy    FacetType = "fieldsOfStudy"
	FacetCompanySizes     FacetType = "staffCountRanges"
	FacetExperience       FacetType = "yearsOfExperienceRanges"
	FacetRevenue          FacetType = "revenue"
	FacetInterfaceLocales FacetType = "interfaceLocales"
	FacetAudienceSegments FacetType = "audienceMatchingSegments"
)

// ParseFacetType turns a facet URN such as urn:li:adTargetingFacet:titles into
// a FacetType. Unknown facets keep their trailing name.
func ParseFacetType(raw string) FacetType {
	name := raw
	if i := strings.LastIndex(raw, ":"); i >= 0 {
		name = raw[i+1:]
	}
	return FacetType(name)
}

// IsCompany reports whether the facet targets organizations.
func (f FacetType) IsCompany() bool {
	switch f {
	case FacetEmployers, "companies", "organizations":
		return true
	}
	return false
}

// IsTitle reports whether the facet targets job titles.
func (f FacetType) IsTitle() bool {
	return f == FacetTitles || f == "jobTitles"
}

// FacetGroup is one facet with the URNs it targets.
type FacetGroup struct {
	FacetType FacetType `json:"facet_type"`
	URNs      []string  `json:"urns"`
}

// TargetingCriteria is a campaign's audience definition.
type TargetingCriteria struct {
	Include []FacetGroup `json:"include,omitempty"`
	Exclude []FacetGroup `json:"exclude,omitempty"`
}

// IsEmpty reports whether no facets are targeted at all.
func (t TargetingCriteria) IsEmpty() bool {
	return len(t.Include) == 0 && len(t.Exclude) == 0
}

// IncludeURNs returns the included URNs for the facets accepted by match.
func (t TargetingCriteria) IncludeURNs(match func(FacetType) bool) []string {
	return collectURNs(t.Include, match)
}

// ExcludeURNs returns the excluded URNs for the facets accepted by match.
func (t TargetingCriteria) ExcludeURNs(match func(FacetType) bool) []string {
	return collectURNs(t.Exclude, match)
}

func collectURNs(groups []FacetGroup, match func(FacetType) bool) []string {
	var urns []string
	seen := make(map[string]struct{})
	for _, g := range groups {
		if !match(g.FacetType) {
			continue
		}
		for _, u := range g.URNs {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			urns = append(urns, u)
		}
	}
	return urns
}

type rawFacetMap map[string][]string

type rawClause struct {
	And []struct {
		Or rawFacetMap `json:"or"`
	} `json:"and"`
	Or rawFacetMap `json:"or"`
}

type rawTargeting struct {
	Include *rawClause `json:"include"`
	Exclude *rawClause `json:"exclude"`
}

// ParseTargetingCriteria decodes the platform's nested include/exclude
// boolean structure (include.and[].or{facet: urns}, exclude.or or
// exclude.and[].or) into TargetingCriteria. Empty input yields empty criteria.
func ParseTargetingCriteria(data []byte) (TargetingCriteria, error) {
	var tc TargetingCriteria
	if len(data) == 0 || string(data) == "null" {
		return tc, nil
	}
	var raw rawTargeting
	if err := json.Unmarshal(data, &raw); err != nil {
		return tc, fmt.Errorf("decode targeting criteria: %w", err)
	}
	tc.Include = raw.Include.groups()
	tc.Exclude = raw.Exclude.groups()
	return tc, nil
}

func (c *rawClause) groups() []FacetGroup {
	if c == nil {
		return nil
	}
	var groups []FacetGroup
	for _, and := range c.And {
		groups = append(groups, and.Or.groups()...)
	}
	return append(groups, c.Or.groups()...)
}

func (m rawFacetMap) groups() []FacetGroup {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]FacetGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, FacetGroup{FacetType: ParseFacetType(k), URNs: m[k]})
	}
	return groups
}
