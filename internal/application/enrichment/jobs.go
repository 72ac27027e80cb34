package enrichment

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

// Job names.
const (
	JobProcessQueue = "enrichment.process_queue"
	JobAutoQueue    = "enrichment.auto_queue"
)

// JobConfig schedules the enrichment jobs.
type JobConfig struct {
	ProcessSchedule   string
	AutoQueueSchedule string
	AutoQueueLimit    int
	// LockTTL bounds how long one instance holds a job lock.
	LockTTL time.Duration
}

// Jobs returns the scheduled enrichment jobs. Each run takes a lock in locks
// so that only one replica works the queue at a time.
func (s *Service) Jobs(cfg JobConfig, locks cache.Cache) []scheduler.Job {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return []scheduler.Job{
		{
			Name:     JobProcessQueue,
			Schedule: cfg.ProcessSchedule,
			Timeout:  cfg.LockTTL,
			Run: s.locked(locks, JobProcessQueue, cfg.LockTTL, func(ctx context.Context) error {
				_, err := s.ProcessQueue(ctx)
				return err
			}),
		},
		{
			Name:     JobAutoQueue,
			Schedule: cfg.AutoQueueSchedule,
			Timeout:  cfg.LockTTL,
			Run: s.locked(locks, JobAutoQueue, cfg.LockTTL, func(ctx context.Context) error {
				_, err := s.AutoQueueHighValuePeople(ctx, cfg.AutoQueueLimit)
				return err
			}),
		},
	}
}

func (s *Service) locked(locks cache.Cache, name string, ttl time.Duration, fn scheduler.JobFunc) scheduler.JobFunc {
	if locks == nil {
		return fn
	}
	return func(ctx context.Context) error {
		ran, err := cache.WithLock(ctx, locks, name, ttl, fn)
		if err == nil && !ran {
			s.logger.Debug("Job lock held elsewhere, skipping", zap.String("job", name))
		}
		return err
	}
}
