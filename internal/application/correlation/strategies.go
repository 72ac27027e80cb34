package correlation

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/campaignlens/backend/internal/domain/analytics"
)

// Fallback sub-scores used when a signal cannot be computed.
const (
	creativeNoSource       = 0.2
	creativeUnavailable    = 0.1
	creativeIDMatch        = 0.95
	contentFloor           = 0.1
	audienceDefault        = 0.2
	performanceNoAnalytics = 0.3
	performanceNoVolume    = 0.2
	performanceViral       = 0.3
	performanceLow         = 0.4
	proximityWindowDays    = 7.0
	day                    = 24 * time.Hour
)

// timingScore rates how well the post date fits the campaign schedule.
func timingScore(post *analytics.Post, campaign *analytics.Campaign, now time.Time) float64 {
	posted := post.PublishedAt()
	if posted == nil || campaign.Schedule == nil {
		return 0
	}
	start := campaign.Schedule.Start
	end := campaign.Schedule.EffectiveEnd(now)
	at := *posted

	if !at.Before(start) && !at.After(end) {
		duration := end.Sub(start)
		if duration <= 0 {
			return 1
		}
		quality := 1 - float64(at.Sub(start))/float64(duration)*0.3
		return math.Max(0.7, quality)
	}

	if at.Before(start) {
		daysBefore := float64(start.Sub(at)) / float64(day)
		if daysBefore <= proximityWindowDays {
			return math.Max(0, 0.5-daysBefore/(2*proximityWindowDays))
		}
		return 0
	}
	daysAfter := float64(at.Sub(end)) / float64(day)
	if daysAfter <= proximityWindowDays {
		return math.Max(0, 0.4-daysAfter/(2.5*proximityWindowDays))
	}
	return 0
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "up": {}, "about": {},
	"into": {}, "through": {}, "during": {}, "before": {}, "after": {}, "above": {},
	"below": {}, "between": {}, "among": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

// keywords lower-cases text, strips punctuation from each word and keeps
// words longer than three characters that are not stop words.
func keywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, f)
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// contentScore measures keyword overlap between campaign and post text.
func contentScore(post *analytics.Post, campaign *analytics.Campaign) float64 {
	campaignText := strings.TrimSpace(campaign.Name + " " + campaign.Description)
	postText := strings.TrimSpace(post.Content + " " + post.Title + " " + post.Description)
	if campaignText == "" || postText == "" {
		return contentFloor
	}

	campaignWords := keywords(campaignText)
	if len(campaignWords) == 0 {
		return contentFloor
	}
	postWords := keywords(postText)
	exact := make(map[string]struct{}, len(postWords))
	for _, w := range postWords {
		exact[w] = struct{}{}
	}

	var matches, partial int
	for _, cw := range campaignWords {
		if _, ok := exact[cw]; ok {
			matches++
			continue
		}
		for _, pw := range postWords {
			if strings.Contains(pw, cw) || strings.Contains(cw, pw) {
				partial++
				break
			}
		}
	}
	n := float64(len(campaignWords))
	return math.Min(1, float64(matches)/n+0.5*float64(partial)/n)
}

// creativeScore looks for the post among the campaign's creative references.
func (c *Correlator) creativeScore(ctx context.Context, post *analytics.Post, campaign *analytics.Campaign) float64 {
	if c.creatives == nil {
		return creativeNoSource
	}
	if post.URL == "" {
		return creativeUnavailable
	}
	creatives, err := c.creatives.GetCampaignCreatives(ctx, campaign.ID)
	if err != nil {
		c.upstreamWarning(ctx, "creatives", campaign.ID, err)
		return creativeUnavailable
	}

	postID := analytics.ExtractPostID(post.URL)
	best := 0.0
	for _, creative := range creatives {
		for _, ref := range creative.References() {
			if strings.TrimSpace(ref) == post.URL {
				return 1
			}
			if postID != "" && analytics.ExtractPostID(ref) == postID {
				best = creativeIDMatch
			}
		}
	}
	return best
}

// audienceScore compares include targeting against the engagers' companies
// and titles.
func (c *Correlator) audienceScore(ctx context.Context, campaign *analytics.Campaign, audience *postAudience) float64 {
	if campaign.Targeting.IsEmpty() || audience == nil || len(audience.engagements) == 0 {
		return audienceDefault
	}

	var total float64
	var comparisons int
	for _, facet := range []struct {
		match  func(analytics.FacetType) bool
		actual []string
	}{
		{analytics.FacetType.IsCompany, audience.companies},
		{analytics.FacetType.IsTitle, audience.titles},
	} {
		urns := campaign.Targeting.IncludeURNs(facet.match)
		if len(urns) == 0 || len(facet.actual) == 0 {
			continue
		}
		targets := c.labels(ctx, urns)
		hits := 0
		for _, value := range facet.actual {
			if overlapsAny(value, targets) {
				hits++
			}
		}
		total += float64(hits) / float64(len(facet.actual))
		comparisons++
	}
	if comparisons == 0 {
		return audienceDefault
	}
	return total / float64(comparisons)
}

func (c *Correlator) labels(ctx context.Context, urns []string) []string {
	out := make([]string, 0, len(urns))
	for _, urn := range urns {
		label := urn
		if c.resolver != nil {
			label = c.resolver.Resolve(ctx, urn)
		}
		if label = strings.ToLower(strings.TrimSpace(label)); label != "" {
			out = append(out, label)
		}
	}
	return out
}

func overlapsAny(value string, targets []string) bool {
	for _, t := range targets {
		if strings.Contains(value, t) || strings.Contains(t, value) {
			return true
		}
	}
	return false
}

// performanceScore rates the post engagement count against the campaign's
// impressions.
func (c *Correlator) performanceScore(ctx context.Context, campaign *analytics.Campaign, audience *postAudience) float64 {
	if c.analytics == nil {
		return performanceNoAnalytics
	}
	rows, err := c.analytics.FindByCampaign(ctx, campaign.ID)
	if err != nil {
		c.upstreamWarning(ctx, "campaign_analytics", campaign.ID, err)
		return performanceNoAnalytics
	}
	if len(rows) == 0 {
		return performanceNoAnalytics
	}
	impressions := analytics.SumImpressions(rows)
	engagements := 0
	if audience != nil {
		engagements = len(audience.engagements)
	}
	if engagements == 0 || impressions == 0 {
		return performanceNoVolume
	}

	rate := float64(engagements) / float64(impressions)
	low, high := c.cfg.PerformanceBandLow, c.cfg.PerformanceBandHigh
	switch {
	case rate > high:
		return performanceViral
	case rate < low:
		return performanceLow
	default:
		return 0.6 + 0.4*math.Min(1, rate/high)
	}
}
