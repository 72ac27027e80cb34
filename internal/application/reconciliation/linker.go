package reconciliation

import (
	"context"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrphanLinker attaches orphaned engagements to person records.
type OrphanLinker interface {
	LinkOrphans(ctx context.Context, orphans []analytics.Engagement) (int, error)
}

// EnrichmentTrigger queues persons for profile enrichment.
type EnrichmentTrigger interface {
	QueueForEnrichment(ctx context.Context, personIDs []uuid.UUID, priority int) (int, error)
}

type nopLinker struct{}

func (nopLinker) LinkOrphans(context.Context, []analytics.Engagement) (int, error) { return 0, nil }

type nopTrigger struct{}

func (nopTrigger) QueueForEnrichment(context.Context, []uuid.UUID, int) (int, error) { return 0, nil }

// StoreOrphanLinker links orphans to already persisted persons with the same
// profile URL. Orphans with no matching person stay orphaned.
type StoreOrphanLinker struct {
	persons     analytics.PersonRepository
	engagements analytics.EngagementRepository
	logger      *zap.Logger
}

// NewStoreOrphanLinker creates a StoreOrphanLinker.
func NewStoreOrphanLinker(persons analytics.PersonRepository, engagements analytics.EngagementRepository, logger *zap.Logger) *StoreOrphanLinker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreOrphanLinker{persons: persons, engagements: engagements, logger: logger}
}

// LinkOrphans returns how many orphans were linked. A failing link is logged
// and skipped.
func (l *StoreOrphanLinker) LinkOrphans(ctx context.Context, orphans []analytics.Engagement) (int, error) {
	urls := make([]string, 0, len(orphans))
	for i := range orphans {
		if key := orphans[i].ProfileKey(); key != "" {
			urls = append(urls, key)
		}
	}
	if len(urls) == 0 {
		return 0, nil
	}
	persons, err := l.persons.FindByProfileURLs(ctx, urls)
	if err != nil {
		return 0, err
	}
	byKey := make(map[string]uuid.UUID, len(persons))
	for i := range persons {
		byKey[persons[i].ProfileKey()] = persons[i].ID
	}

	linked := 0
	for i := range orphans {
		personID, ok := byKey[orphans[i].ProfileKey()]
		if !ok {
			continue
		}
		if err := l.engagements.LinkPerson(ctx, orphans[i].ID, personID); err != nil {
			l.logger.Warn("Failed to link orphaned engagement",
				zap.String("engagement_id", orphans[i].ID.String()),
				zap.Error(err))
			continue
		}
		linked++
	}
	return linked, nil
}
