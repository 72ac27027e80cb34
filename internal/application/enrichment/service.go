// Package enrichment keeps person profiles complete by queueing them for the
// profile scraper and processing the queue in small batches.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Source is recorded on persons enriched by the profile scraper.
const Source = "apify_linkedin"

// Queue priorities.
const (
	PriorityDefault = 5
	PrioritySenior  = 7
	PriorityNotable = 10
)

// DefaultBatchSize is how many queued persons one ProcessQueue call handles.
const DefaultBatchSize = 5

// ErrEnricherMissing is returned by ProcessQueue when no enricher is set.
var ErrEnricherMissing = shared.NewDomainError("ENRICHER_MISSING", "no profile enricher configured")

var seniorKeywords = []string{"director", "manager", "ceo", "founder"}

// Stats reports the enrichment backlog.
type Stats struct {
	analytics.EnrichmentStats
	EnrichmentRate float64 `json:"enrichment_rate"`
}

// ProcessResult summarizes one ProcessQueue call.
type ProcessResult struct {
	Processed int      `json:"processed"`
	Enriched  int      `json:"enriched"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Service manages the enrichment queue.
type Service struct {
	persons   analytics.PersonRepository
	enricher  analytics.ProfileEnricher
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service. enricher may be nil, in which case the queue
// can be filled but not processed.
func NewService(persons analytics.PersonRepository, enricher analytics.ProfileEnricher, opts ...Option) *Service {
	s := &Service{
		persons:   persons,
		enricher:  enricher,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NeedsEnrichment reports whether the person was never enriched or its last
// attempt is stale.
func (s *Service) NeedsEnrichment(p *analytics.Person) bool {
	return p.RequiresEnrichment(s.now())
}

// QueueForEnrichment marks persons as pending with the given priority and
// returns how many were queued.
func (s *Service) QueueForEnrichment(ctx context.Context, personIDs []uuid.UUID, priority int) (int, error) {
	if len(personIDs) == 0 {
		return 0, nil
	}
	if priority <= 0 {
		priority = PriorityDefault
	}
	n, err := s.persons.MarkForEnrichment(ctx, personIDs, priority)
	if err != nil {
		return 0, fmt.Errorf("mark for enrichment: %w", err)
	}
	s.logger.Info("Queued persons for enrichment", zap.Int64("queued", n), zap.Int("priority", priority))
	return int(n), nil
}

// ProcessQueue enriches the highest priority pending persons, one at a time.
// A failed profile is marked failed and the batch continues.
func (s *Service) ProcessQueue(ctx context.Context) (*ProcessResult, error) {
	if s.enricher == nil {
		return nil, ErrEnricherMissing
	}
	ctx, span := telemetry.StartSpan(ctx, "enrichment.process_queue")
	defer span.End()

	queue, err := s.persons.FindEnrichmentQueue(ctx, s.batchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("find enrichment queue: %w", err)
	}
	res := &ProcessResult{}
	for i := range queue {
		if ctx.Err() != nil {
			break
		}
		res.Processed++
		if err := s.enrich(ctx, &queue[i]); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", queue[i].ID, err))
			continue
		}
		res.Enriched++
	}
	if res.Processed > 0 {
		s.logger.Info("Processed enrichment queue",
			zap.Int("processed", res.Processed),
			zap.Int("enriched", res.Enriched),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}

func (s *Service) enrich(ctx context.Context, p *analytics.Person) error {
	p.EnrichmentStatus = analytics.EnrichmentInProgress
	if err := s.persons.Update(ctx, p); err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}

	data, err := s.enricher.EnrichProfile(ctx, p.LinkedInURL)
	attempted := s.now()
	p.LastEnrichmentAttempt = &attempted
	if err != nil {
		s.logger.Warn("Profile enrichment failed",
			zap.String("person_id", p.ID.String()),
			zap.String("profile_url", p.LinkedInURL),
			zap.Error(err))
		p.EnrichmentStatus = analytics.EnrichmentFailed
		if uerr := s.persons.Update(context.WithoutCancel(ctx), p); uerr != nil {
			return errors.Join(err, uerr)
		}
		return err
	}

	apply(p, data)
	p.HasBeenEnriched = true
	p.NeedsEnrichment = false
	p.EnrichmentStatus = analytics.EnrichmentCompleted
	p.EnrichmentSource = Source
	p.QualityScore = p.Completeness()
	if err := s.persons.Update(ctx, p); err != nil {
		return fmt.Errorf("store enriched profile: %w", err)
	}
	return nil
}

// apply copies the non-empty scraped fields onto the person.
func apply(p *analytics.Person, d *analytics.ProfileData) {
	if d == nil {
		return
	}
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&p.Headline, d.Headline)
	set(&p.CurrentTitle, d.Title)
	set(&p.CurrentCompany, d.Company)
	set(&p.Location, d.Location)
	set(&p.ProfilePicture, d.ProfilePicture)
}

// AutoQueueHighValuePeople queues unqueued notable persons and persons with a
// senior headline. It returns how many were queued.
func (s *Service) AutoQueueHighValuePeople(ctx context.Context, limit int) (int, error) {
	persons, err := s.persons.FindUnqueued(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("find unqueued persons: %w", err)
	}
	byPriority := map[int][]uuid.UUID{}
	for i := range persons {
		if pr := priorityFor(&persons[i]); pr > 0 {
			byPriority[pr] = append(byPriority[pr], persons[i].ID)
		}
	}

	total := 0
	for _, pr := range []int{PriorityNotable, PrioritySenior} {
		n, err := s.QueueForEnrichment(ctx, byPriority[pr], pr)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// priorityFor returns the auto-queue priority of a person, or 0 when the
// person is not worth queueing.
func priorityFor(p *analytics.Person) int {
	if p.IsNotable {
		return PriorityNotable
	}
	headline := strings.ToLower(p.Headline)
	for _, k := range seniorKeywords {
		if strings.Contains(headline, k) {
			return PrioritySenior
		}
	}
	return 0
}

// Stats returns queue counts and the enriched percentage.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.persons.EnrichmentStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("enrichment stats: %w", err)
	}
	return &Stats{EnrichmentStats: st, EnrichmentRate: st.Rate()}, nil
}
