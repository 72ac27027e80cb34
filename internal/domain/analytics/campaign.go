package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Campaign is an ad campaign identified by its platform-assigned numeric id.
type Campaign struct {
	ID              string
	AccountID       string
	CampaignGroupID string
	Name            string
	Description     string
	Status          string
	Type            string
	Schedule        *RunSchedule
	Targeting       TargetingCriteria
	CreativeIDs     []string
	DailyBudget     decimal.Decimal
	TotalBudget     decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RunSchedule is the window a campaign runs in. A nil End means ongoing.
type RunSchedule struct {
	Start time.Time
	End   *time.Time
}

// EffectiveEnd returns the schedule end, treating an ongoing campaign as ending now.
func (s RunSchedule) EffectiveEnd(now time.Time) time.Time {
	if s.End != nil {
		return *s.End
	}
	return now
}

// Contains reports whether t falls inside the schedule window.
func (s RunSchedule) Contains(t, now time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.EffectiveEnd(now))
}

// CampaignAnalytics is one reporting row for a campaign.
type CampaignAnalytics struct {
	CampaignID  string
	Date        time.Time
	Impressions int64
	Clicks      int64
	Engagements int64
	Spend       decimal.Decimal
}

// SumImpressions totals impressions across analytics rows.
func SumImpressions(rows []CampaignAnalytics) int64 {
	var total int64
	for _, r := range rows {
		total += r.Impressions
	}
	return total
}

// SumSpend totals spend across analytics rows.
func SumSpend(rows []CampaignAnalytics) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Spend)
	}
	return total
}

// Creative is a rendered ad unit that references the post or share it promotes.
type Creative struct {
	ID               string
	CampaignID       string
	Type             string
	Status           string
	Reference        string
	ShareURL         string
	UGCPostReference string
	Title            string
	Text             string
}

// References lists the non-empty post references carried by the creative.
func (c Creative) References() []string {
	refs := make([]string, 0, 3)
	for _, r := range []string{c.ShareURL, c.Reference, c.UGCPostReference} {
		if r != "" {
			refs = append(refs, r)
		}
	}
	return refs
}

// PostURL derives the public post URL a creative promotes, or "".
func (c Creative) PostURL() string {
	if c.Type == "ARTICLE" && c.ShareURL != "" {
		return c.ShareURL
	}
	if id := shareIDPattern.FindStringSubmatch(c.Reference); id != nil {
		return FeedUpdateURL("urn:li:share:" + id[1])
	}
	if id := ugcPostIDPattern.FindStringSubmatch(c.UGCPostReference); id != nil {
		return FeedUpdateURL("urn:li:ugcPost:" + id[1])
	}
	if id := ugcPostIDPattern.FindStringSubmatch(c.Reference); id != nil {
		return FeedUpdateURL("urn:li:ugcPost:" + id[1])
	}
	return c.ShareURL
}

// Share is an organic organization share.
type Share struct {
	ID          string
	ActivityURN string
	Text        string
	Title       string
	CreatedAt   time.Time
}

// DemographicRow is an aggregated audience breakdown for a campaign.
type DemographicRow struct {
	CampaignID  string
	PivotType   string
	PivotValue  string
	Impressions int64
	Clicks      int64
	Engagements int64
	Spend       decimal.Decimal
}
