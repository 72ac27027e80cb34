package persistence

import (
	"context"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPersonRepository implements analytics.PersonRepository using GORM
type GormPersonRepository struct {
	db *gorm.DB
}

// NewGormPersonRepository creates a new GormPersonRepository
func NewGormPersonRepository(db *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormPersonRepository) WithTx(tx *gorm.DB) *GormPersonRepository {
	return &GormPersonRepository{db: tx}
}

// FindByID finds a person by its ID
func (r *GormPersonRepository) FindByID(ctx context.Context, id uuid.UUID) (*analytics.Person, error) {
	var m models.PersonModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return m.ToDomain(), nil
}

// FindByProfileURLs finds persons by profile URL, ignoring case
func (r *GormPersonRepository) FindByProfileURLs(ctx context.Context, urls []string) ([]analytics.Person, error) {
	keys := profileKeys(urls)
	persons := make([]analytics.Person, 0, len(keys))
	err := inChunks(keys, batchSize, func(chunk []string) error {
		var rows []models.PersonModel
		if err := r.db.WithContext(ctx).Where("profile_key IN ?", chunk).Find(&rows).Error; err != nil {
			return err
		}
		for i := range rows {
			persons = append(persons, *rows[i].ToDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persons, nil
}

func profileKeys(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	keys := make([]string, 0, len(urls))
	for _, u := range urls {
		k := analytics.NormalizeProfileURL(u)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Upsert inserts persons or merges them into stored rows with the same
// profile key. Scraped fields only fill in, overrides and enrichment state
// are untouched. Stored IDs are written back.
func (r *GormPersonRepository) Upsert(ctx context.Context, persons ...*analytics.Person) error {
	if len(persons) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*models.PersonModel, 0, len(persons))
	byKey := make(map[string][]*analytics.Person, len(persons))
	for _, p := range persons {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		key := p.ProfileKey()
		if _, dup := byKey[key]; !dup {
			rows = append(rows, models.PersonModelFromDomain(p))
		}
		byKey[key] = append(byKey[key], p)
	}

	const table = "people"
	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "profile_key"}},
		DoUpdates: clause.Set{
			keepIfEmpty(table, "name"),
			keepIfEmpty(table, "current_title"),
			keepIfEmpty(table, "current_company"),
			keepIfEmpty(table, "headline"),
			keepIfEmpty(table, "profile_picture"),
			keepIfEmpty(table, "location"),
			keepIfZero(table, "quality_score"),
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := inChunks(rows, batchSize, func(chunk []*models.PersonModel) error {
			return tx.Clauses(onConflict).Create(chunk).Error
		}); err != nil {
			return translateError(err)
		}

		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		return inChunks(keys, batchSize, func(chunk []string) error {
			var stored []models.PersonModel
			if err := tx.Select("id", "profile_key", "created_at").
				Where("profile_key IN ?", chunk).
				Find(&stored).Error; err != nil {
				return err
			}
			for _, s := range stored {
				for _, p := range byKey[s.ProfileKey] {
					p.ID = s.ID
					p.CreatedAt = s.CreatedAt
				}
			}
			return nil
		})
	})
}

// Update saves every field of an existing person
func (r *GormPersonRepository) Update(ctx context.Context, person *analytics.Person) error {
	person.UpdatedAt = time.Now()
	m := models.PersonModelFromDomain(person)
	result := r.db.WithContext(ctx).Model(&models.PersonModel{}).
		Where("id = ?", person.ID).
		Select("*").Omit("id", "created_at").
		Updates(m)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkForEnrichment flags persons as pending enrichment with the given priority
func (r *GormPersonRepository) MarkForEnrichment(ctx context.Context, ids []uuid.UUID, priority int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var total int64
	err := inChunks(ids, batchSize, func(chunk []uuid.UUID) error {
		result := r.db.WithContext(ctx).Model(&models.PersonModel{}).
			Where("id IN ?", chunk).
			Updates(map[string]any{
				"needs_enrichment":    true,
				"enrichment_status":   string(analytics.EnrichmentPending),
				"enrichment_priority": priority,
				"updated_at":          time.Now(),
			})
		total += result.RowsAffected
		return result.Error
	})
	return total, err
}

// FindEnrichmentQueue returns pending persons, highest priority first
func (r *GormPersonRepository) FindEnrichmentQueue(ctx context.Context, limit int) ([]analytics.Person, error) {
	return r.find(ctx, limit, func(q *gorm.DB) *gorm.DB {
		return q.Where("needs_enrichment = ? AND enrichment_status = ?", true, string(analytics.EnrichmentPending)).
			Order("enrichment_priority DESC").
			Order("created_at ASC")
	})
}

// FindUnqueued returns persons never enriched and neither pending nor in progress
func (r *GormPersonRepository) FindUnqueued(ctx context.Context, limit int) ([]analytics.Person, error) {
	return r.find(ctx, limit, func(q *gorm.DB) *gorm.DB {
		return q.Where("has_been_enriched = ?", false).
			Where("enrichment_status IS NULL OR enrichment_status NOT IN ?",
				[]string{string(analytics.EnrichmentPending), string(analytics.EnrichmentInProgress)}).
			Order("created_at ASC")
	})
}

func (r *GormPersonRepository) find(ctx context.Context, limit int, scope func(*gorm.DB) *gorm.DB) ([]analytics.Person, error) {
	q := scope(r.db.WithContext(ctx).Model(&models.PersonModel{}))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.PersonModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	persons := make([]analytics.Person, len(rows))
	for i := range rows {
		persons[i] = *rows[i].ToDomain()
	}
	return persons, nil
}

// EnrichmentStats counts persons by enrichment state
func (r *GormPersonRepository) EnrichmentStats(ctx context.Context) (analytics.EnrichmentStats, error) {
	var row struct {
		Total      int64
		Enriched   int64
		Pending    int64
		InProgress int64
		Failed     int64
	}
	err := r.db.WithContext(ctx).Model(&models.PersonModel{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN has_been_enriched THEN 1 ELSE 0 END), 0) AS enriched,
			COALESCE(SUM(CASE WHEN enrichment_status = ? THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN enrichment_status = ? THEN 1 ELSE 0 END), 0) AS in_progress,
			COALESCE(SUM(CASE WHEN enrichment_status = ? THEN 1 ELSE 0 END), 0) AS failed`,
			string(analytics.EnrichmentPending),
			string(analytics.EnrichmentInProgress),
			string(analytics.EnrichmentFailed)).
		Scan(&row).Error
	if err != nil {
		return analytics.EnrichmentStats{}, err
	}
	return analytics.EnrichmentStats{
		Total:      row.Total,
		Enriched:   row.Enriched,
		Pending:    row.Pending,
		InProgress: row.InProgress,
		Failed:     row.Failed,
	}, nil
}

var _ analytics.PersonRepository = (*GormPersonRepository)(nil)
