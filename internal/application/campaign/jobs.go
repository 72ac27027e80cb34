package campaign

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// JobResync is the name of the scheduled campaign post resync.
const JobResync = "campaign.resync"

// CampaignLister lists the live campaigns of an ad account.
type CampaignLister interface {
	GetCampaigns(ctx context.Context, accountID string) ([]analytics.Campaign, error)
}

// SyncAccount stores the live campaigns of accountID and syncs the posts of
// each one. With a performance source it then stores the last
// PerformanceLookback of reporting; a failure there is recorded in the
// result and does not fail the sync.
func (s *Syncer) SyncAccount(ctx context.Context, lister CampaignLister, accountID string) (*MultiSyncResult, error) {
	campaigns, err := lister.GetCampaigns(ctx, accountID)
	if err != nil {
		return nil, analytics.ErrUpstreamUnavailable.Wrap(err)
	}
	if len(campaigns) > 0 {
		ptrs := make([]*analytics.Campaign, len(campaigns))
		for i := range campaigns {
			ptrs[i] = &campaigns[i]
		}
		if err := s.campaigns.Upsert(ctx, ptrs...); err != nil {
			return nil, err
		}
	}

	res := s.SyncMultipleCampaigns(ctx, campaigns)
	if s.performance != nil && len(campaigns) > 0 {
		ids := make([]string, len(campaigns))
		for i := range campaigns {
			ids[i] = campaigns[i].ID
		}
		since := time.Now().UTC().Add(-PerformanceLookback).Truncate(24 * time.Hour)
		perf, err := s.SyncPerformance(ctx, ids, since)
		if err != nil {
			s.logger.Warn("Campaign performance sync failed", zap.String("account_id", accountID), zap.Error(err))
			res.Errors = append(res.Errors, SyncError{Item: "performance", Error: err.Error()})
		}
		res.Performance = perf
	}
	s.logger.Info("Account campaign sync complete",
		zap.String("account_id", accountID),
		zap.Int("campaigns", res.TotalCampaigns),
		zap.Int("successful", res.SuccessfulCampaigns),
		zap.Int("created", res.TotalPostsCreated),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

// ResyncJob schedules SyncAccount. The lock in locks keeps replicas from
// syncing the same account concurrently; a nil locks runs unguarded.
func (s *Syncer) ResyncJob(schedule string, lister CampaignLister, accountID string, locks cache.Cache) scheduler.Job {
	const lockTTL = 30 * time.Minute
	run := func(ctx context.Context) error {
		_, err := s.SyncAccount(ctx, lister, accountID)
		return err
	}
	return scheduler.Job{
		Name:     JobResync,
		Schedule: schedule,
		Timeout:  lockTTL,
		Run: func(ctx context.Context) error {
			if locks == nil {
				return run(ctx)
			}
			ran, err := cache.WithLock(ctx, locks, JobResync+":"+accountID, lockTTL, run)
			if err == nil && !ran {
				s.logger.Debug("Resync lock held elsewhere, skipping", zap.String("account_id", accountID))
			}
			return err
		},
	}
}
