package campaign

import (
	"context"
	"fmt"
	"sort"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/shopspring/decimal"
)

// Demographic pivot types.
const (
	PivotCompany   = "COMPANY"
	PivotJobTitle  = "JOB_TITLE"
	PivotSeniority = "SENIORITY"
	PivotIndustry  = "INDUSTRY"
)

var pivotLimits = map[string]int{
	PivotCompany:   10,
	PivotJobTitle:  10,
	PivotSeniority: 5,
	PivotIndustry:  5,
}

// Segment is one audience segment summed across campaigns.
type Segment struct {
	Label       string          `json:"label"`
	Impressions int64           `json:"impressions"`
	Clicks      int64           `json:"clicks"`
	Spend       decimal.Decimal `json:"spend"`
}

// Demographics is the audience reached by a set of campaigns.
type Demographics struct {
	Companies        []Segment       `json:"companies"`
	JobTitles        []Segment       `json:"job_titles"`
	Seniorities      []Segment       `json:"seniorities"`
	Industries       []Segment       `json:"industries"`
	TotalSpend       decimal.Decimal `json:"total_spend"`
	TotalImpressions int64           `json:"total_impressions"`
	TotalClicks      int64           `json:"total_clicks"`
}

// DemographicsService aggregates stored demographic breakdowns.
type DemographicsService struct {
	reports analytics.AnalyticsRepository
}

// NewDemographicsService creates a DemographicsService.
func NewDemographicsService(reports analytics.AnalyticsRepository) *DemographicsService {
	return &DemographicsService{reports: reports}
}

// GetAggregatedDemographics sums the breakdown rows of campaignIDs per pivot
// value and keeps the top segments by impressions. Totals come from the
// campaign-level reporting rows, so each impression is counted once. It
// returns nil when no breakdown is stored.
func (s *DemographicsService) GetAggregatedDemographics(ctx context.Context, campaignIDs []string) (*Demographics, error) {
	if len(campaignIDs) == 0 {
		return nil, nil
	}
	rows, err := s.reports.FindDemographics(ctx, campaignIDs)
	if err != nil {
		return nil, fmt.Errorf("find demographics: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byPivot := map[string][]analytics.DemographicRow{}
	for _, r := range rows {
		byPivot[r.PivotType] = append(byPivot[r.PivotType], r)
	}
	d := &Demographics{
		Companies:   topSegments(byPivot[PivotCompany], pivotLimits[PivotCompany]),
		JobTitles:   topSegments(byPivot[PivotJobTitle], pivotLimits[PivotJobTitle]),
		Seniorities: topSegments(byPivot[PivotSeniority], pivotLimits[PivotSeniority]),
		Industries:  topSegments(byPivot[PivotIndustry], pivotLimits[PivotIndustry]),
	}

	totals, err := s.reports.FindByCampaigns(ctx, campaignIDs)
	if err != nil {
		return nil, fmt.Errorf("find campaign analytics: %w", err)
	}
	d.TotalSpend = analytics.SumSpend(totals)
	d.TotalImpressions = analytics.SumImpressions(totals)
	for _, t := range totals {
		d.TotalClicks += t.Clicks
	}
	return d, nil
}

func topSegments(rows []analytics.DemographicRow, limit int) []Segment {
	byLabel := map[string]*Segment{}
	var order []string
	for _, r := range rows {
		seg, ok := byLabel[r.PivotValue]
		if !ok {
			seg = &Segment{Label: r.PivotValue, Spend: decimal.Zero}
			byLabel[r.PivotValue] = seg
			order = append(order, r.PivotValue)
		}
		seg.Impressions += r.Impressions
		seg.Clicks += r.Clicks
		seg.Spend = seg.Spend.Add(r.Spend)
	}

	out := make([]Segment, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Impressions > out[j].Impressions })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
