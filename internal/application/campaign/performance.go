package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PerformanceLookback is how far back an account sync reads daily reporting.
const PerformanceLookback = 90 * 24 * time.Hour

// ErrNoPerformanceSource is returned by SyncPerformance on a Syncer built
// without WithPerformance.
var ErrNoPerformanceSource = errors.New("campaign performance source not configured")

// PerformanceResult counts the reporting rows written by one sync.
type PerformanceResult struct {
	Campaigns       int         `json:"campaigns"`
	AnalyticsRows   int         `json:"analytics_rows"`
	DemographicRows int         `json:"demographic_rows"`
	Errors          []SyncError `json:"errors,omitempty"`
}

// SyncPerformance stores the daily reporting rows of campaignIDs since the
// given day, then the audience breakdown of each campaign. A failed
// breakdown is recorded and the remaining campaigns still sync.
func (s *Syncer) SyncPerformance(ctx context.Context, campaignIDs []string, since time.Time) (*PerformanceResult, error) {
	if s.performance == nil || s.reports == nil {
		return nil, ErrNoPerformanceSource
	}
	res := &PerformanceResult{Campaigns: len(campaignIDs)}
	if len(campaignIDs) == 0 {
		return res, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "campaign.sync_performance")
	defer span.End()

	rows, err := s.performance.GetCampaignPerformance(ctx, campaignIDs, since)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, analytics.ErrUpstreamUnavailable.Wrap(err)
	}
	if err := s.reports.Upsert(ctx, rows...); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	res.AnalyticsRows = len(rows)

	for _, id := range campaignIDs {
		demo, err := s.performance.GetCampaignDemographics(ctx, id)
		if err == nil {
			err = s.reports.UpsertDemographics(ctx, demo...)
		}
		if err != nil {
			s.logger.Warn("Campaign demographics sync failed", zap.String("campaign_id", id), zap.Error(err))
			res.Errors = append(res.Errors, SyncError{CampaignID: id, Item: "demographics", Error: err.Error()})
			continue
		}
		res.DemographicRows += len(demo)
	}

	s.logger.Info("Campaign performance synced",
		zap.Int("campaigns", res.Campaigns),
		zap.Int("analytics_rows", res.AnalyticsRows),
		zap.Int("demographic_rows", res.DemographicRows),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}
