//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/migration"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newPostgresDatabase starts postgres, applies the embedded migrations and
// returns a Database on top of the migrated schema.
func newPostgresDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("campaignlens_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, "", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 2, version)

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{DriverName: "postgres", DSN: dsn}), &gorm.Config{})
	require.NoError(t, err)
	return NewDatabaseFromGorm(gormDB)
}

func TestPostgres_RepositoriesOnMigratedSchema(t *testing.T) {
	db := newPostgresDatabase(t)
	repos := db.Repositories()
	ctx := context.Background()

	post := analytics.NewPost("https://www.linkedin.com/feed/update/urn:li:activity:7100000000000000001/")
	post.Title = "Launch"
	require.NoError(t, repos.Posts.Upsert(ctx, post))
	require.NoError(t, repos.Posts.SetPrimaryCampaign(ctx, post.ID, "cmp-1"))

	again := analytics.NewPost(post.URL)
	require.NoError(t, repos.Posts.Upsert(ctx, again))
	assert.Equal(t, post.ID, again.ID)

	stored, err := repos.Posts.FindByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Launch", stored.Title)
	assert.Equal(t, "cmp-1", stored.PrimaryCampaignID)

	person := &analytics.Person{ID: uuid.New(), LinkedInURL: "https://www.linkedin.com/in/Jane", Name: "Jane"}
	require.NoError(t, repos.Persons.Upsert(ctx, person))

	orphan := &analytics.Engagement{ID: uuid.New(), PostID: post.ID, ProfileURL: "https://www.linkedin.com/in/jane"}
	require.NoError(t, repos.Engagements.Upsert(ctx, orphan))

	orphans, err := repos.Engagements.FindOrphansByPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)

	require.NoError(t, repos.Engagements.LinkPerson(ctx, orphan.ID, person.ID))
	linked, err := repos.Engagements.FindByPost(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	require.NotNil(t, linked[0].Person)
	assert.Equal(t, "Jane", linked[0].Person.Name)

	link := analytics.PostCampaignLink{PostID: post.ID, CampaignID: "cmp-1", AssociationType: analytics.AssociationAuto, Confidence: 0.8}
	require.NoError(t, repos.PostCampaigns.Upsert(ctx, link))
	require.NoError(t, repos.PostCampaigns.Upsert(ctx, link))
	links, err := repos.PostCampaigns.FindByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestPostgres_UniqueViolationMapsToAlreadyExists(t *testing.T) {
	db := newPostgresDatabase(t)
	ctx := context.Background()

	err := db.DB.WithContext(ctx).Exec(
		`INSERT INTO people (id, linkedin_url, profile_key, created_at, updated_at) VALUES (?, ?, ?, now(), now()), (?, ?, ?, now(), now())`,
		uuid.New(), "https://linkedin.com/in/a", "https://linkedin.com/in/a",
		uuid.New(), "https://linkedin.com/in/A", "https://linkedin.com/in/a",
	).Error
	assert.ErrorIs(t, translateError(err), shared.ErrAlreadyExists)
}
