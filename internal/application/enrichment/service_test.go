package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/persistence"
	"github.com/campaignlens/backend/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type MockEnricher struct {
	mock.Mock
}

func (m *MockEnricher) EnrichProfile(ctx context.Context, profileURL string) (*analytics.ProfileData, error) {
	args := m.Called(ctx, profileURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analytics.ProfileData), args.Error(1)
}

func newPersons(t *testing.T, people ...*analytics.Person) *persistence.GormPersonRepository {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: persistence.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	repo := db.Repositories().Persons
	if len(people) > 0 {
		require.NoError(t, repo.Upsert(context.Background(), people...))
	}
	return repo
}

var fixedNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestService_NeedsEnrichment(t *testing.T) {
	recent := fixedNow.Add(-24 * time.Hour)
	stale := fixedNow.Add(-31 * 24 * time.Hour)
	tests := []struct {
		name   string
		person analytics.Person
		want   bool
	}{
		{"never enriched", analytics.Person{}, true},
		{"enriched recently", analytics.Person{HasBeenEnriched: true, LastEnrichmentAttempt: &recent}, false},
		{"enriched long ago", analytics.Person{HasBeenEnriched: true, LastEnrichmentAttempt: &stale}, true},
		{"enriched without attempt time", analytics.Person{HasBeenEnriched: true}, false},
	}
	s := NewService(nil, nil, WithClock(clock))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.NeedsEnrichment(&tt.person))
		})
	}
}

func TestService_QueueAndProcess(t *testing.T) {
	ctx := context.Background()
	ada := &analytics.Person{LinkedInURL: "https://linkedin.com/in/ada", Name: "Ada"}
	grace := &analytics.Person{LinkedInURL: "https://linkedin.com/in/grace", Name: "Grace"}
	linus := &analytics.Person{LinkedInURL: "https://linkedin.com/in/linus", Name: "Linus"}
	persons := newPersons(t, ada, grace, linus)

	enricher := &MockEnricher{}
	enricher.On("EnrichProfile", mock.Anything, "https://linkedin.com/in/grace").Return(&analytics.ProfileData{
		Headline:       "VP Engineering at Acme",
		Title:          "VP Engineering",
		Company:        "Acme",
		Location:       "Berlin",
		ProfilePicture: "https://img/grace.jpg",
	}, nil)
	enricher.On("EnrichProfile", mock.Anything, "https://linkedin.com/in/ada").Return(nil, errors.New("actor failed"))
	s := NewService(persons, enricher, WithClock(clock), WithBatchSize(2))

	n, err := s.QueueForEnrichment(ctx, []uuid.UUID{ada.ID}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.QueueForEnrichment(ctx, []uuid.UUID{grace.ID}, PriorityNotable)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.QueueForEnrichment(ctx, nil, PriorityNotable)
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := s.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "actor failed")
	enricher.AssertExpectations(t)

	stored, err := persons.FindByID(ctx, grace.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasBeenEnriched)
	assert.False(t, stored.NeedsEnrichment)
	assert.Equal(t, analytics.EnrichmentCompleted, stored.EnrichmentStatus)
	assert.Equal(t, Source, stored.EnrichmentSource)
	assert.Equal(t, "Acme", stored.CurrentCompany)
	assert.Equal(t, "Berlin", stored.Location)
	assert.InDelta(t, 1.0, stored.QualityScore, 1e-9)
	require.NotNil(t, stored.LastEnrichmentAttempt)

	failed, err := persons.FindByID(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, analytics.EnrichmentFailed, failed.EnrichmentStatus)
	assert.False(t, failed.HasBeenEnriched)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Enriched)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Pending)
	assert.InDelta(t, 100.0/3, stats.EnrichmentRate, 1e-6)

	res, err = s.ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Processed)
}

func TestService_ProcessQueueWithoutEnricher(t *testing.T) {
	s := NewService(newPersons(t), nil)

	_, err := s.ProcessQueue(context.Background())
	assert.ErrorIs(t, err, ErrEnricherMissing)
}

func TestService_AutoQueueHighValuePeople(t *testing.T) {
	ctx := context.Background()
	notable := &analytics.Person{LinkedInURL: "https://linkedin.com/in/notable", Name: "N", IsNotable: true}
	founder := &analytics.Person{LinkedInURL: "https://linkedin.com/in/founder", Name: "F", Headline: "Co-Founder & CTO"}
	manager := &analytics.Person{LinkedInURL: "https://linkedin.com/in/manager", Name: "M", Headline: "Engineering Manager"}
	junior := &analytics.Person{LinkedInURL: "https://linkedin.com/in/junior", Name: "J", Headline: "Intern"}
	persons := newPersons(t, notable, founder, manager, junior)
	s := NewService(persons, nil)

	n, err := s.AutoQueueHighValuePeople(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	queue, err := persons.FindEnrichmentQueue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, notable.ID, queue[0].ID)
	assert.Equal(t, PriorityNotable, queue[0].EnrichmentPriority)
	assert.Equal(t, PrioritySenior, queue[1].EnrichmentPriority)
	assert.Equal(t, PrioritySenior, queue[2].EnrichmentPriority)

	n, err = s.AutoQueueHighValuePeople(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_Jobs(t *testing.T) {
	ctx := context.Background()
	notable := &analytics.Person{LinkedInURL: "https://linkedin.com/in/notable", Name: "N", IsNotable: true}
	persons := newPersons(t, notable)
	locks := cache.NewInMemoryCache(time.Minute)
	t.Cleanup(func() { _ = locks.Close() })
	s := NewService(persons, nil)

	jobs := s.Jobs(JobConfig{ProcessSchedule: "*/15 * * * *", AutoQueueSchedule: "0 9 * * *", AutoQueueLimit: 50}, locks)
	require.Len(t, jobs, 2)
	byName := map[string]scheduler.Job{}
	for _, j := range jobs {
		byName[j.Name] = j
	}

	t.Run("lock held elsewhere skips the run", func(t *testing.T) {
		ok, err := locks.SetNX(ctx, "lock:"+JobAutoQueue, []byte("other"), time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, byName[JobAutoQueue].Run(ctx))
		queue, err := persons.FindEnrichmentQueue(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, queue)
		require.NoError(t, locks.Delete(ctx, "lock:"+JobAutoQueue))
	})

	t.Run("auto queue", func(t *testing.T) {
		require.NoError(t, byName[JobAutoQueue].Run(ctx))
		queue, err := persons.FindEnrichmentQueue(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, queue, 1)
	})

	t.Run("process queue reports a missing enricher", func(t *testing.T) {
		assert.ErrorIs(t, byName[JobProcessQueue].Run(ctx), ErrEnricherMissing)
	})

	t.Run("jobs register on the scheduler", func(t *testing.T) {
		sch := scheduler.NewScheduler(scheduler.DefaultConfig(), nil)
		for _, j := range jobs {
			require.NoError(t, sch.Register(j))
		}
		assert.Len(t, sch.Jobs(), 2)
	})
}
