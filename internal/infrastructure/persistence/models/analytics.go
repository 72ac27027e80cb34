package models

import (
	"encoding/json"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var modelLogger = zap.L().Named("analytics.models")

// PostModel is the persistence model for posts, unique on the canonical URL.
type PostModel struct {
	BaseModel
	URL               string          `gorm:"type:varchar(512);not null;uniqueIndex"`
	Title             string          `gorm:"type:varchar(255)"`
	Content           string          `gorm:"type:text"`
	Description       string          `gorm:"type:text"`
	ImageURL          string          `gorm:"type:varchar(1024)"`
	AuthorName        string          `gorm:"type:varchar(255)"`
	PostedAt          *time.Time      `gorm:"index"`
	PrimaryCampaignID string          `gorm:"type:varchar(64);index"`
	CampaignSpend     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	TotalEngagements  int             `gorm:"not null;default:0"`
	IsOrganic         bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (PostModel) TableName() string {
	return "posts"
}

// ToDomain converts the persistence model to a domain Post.
func (m *PostModel) ToDomain() *analytics.Post {
	return &analytics.Post{
		ID:                m.ID,
		URL:               m.URL,
		Title:             m.Title,
		Content:           m.Content,
		Description:       m.Description,
		ImageURL:          m.ImageURL,
		AuthorName:        m.AuthorName,
		PostedAt:          m.PostedAt,
		PrimaryCampaignID: m.PrimaryCampaignID,
		CampaignSpend:     m.CampaignSpend,
		TotalEngagements:  m.TotalEngagements,
		IsOrganic:         m.IsOrganic,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// PostModelFromDomain creates a persistence model from a domain Post.
func PostModelFromDomain(p *analytics.Post) *PostModel {
	return &PostModel{
		BaseModel:         BaseModel{ID: p.ID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
		URL:               p.URL,
		Title:             p.Title,
		Content:           p.Content,
		Description:       p.Description,
		ImageURL:          p.ImageURL,
		AuthorName:        p.AuthorName,
		PostedAt:          p.PostedAt,
		PrimaryCampaignID: p.PrimaryCampaignID,
		CampaignSpend:     p.CampaignSpend,
		TotalEngagements:  p.TotalEngagements,
		IsOrganic:         p.IsOrganic,
	}
}

// PersonModel is the persistence model for people. ProfileKey is the
// lower-cased profile URL and carries the uniqueness constraint.
type PersonModel struct {
	BaseModel
	LinkedInURL     string  `gorm:"column:linkedin_url;type:varchar(512);not null"`
	ProfileKey      string  `gorm:"type:varchar(512);not null;uniqueIndex"`
	Name            string  `gorm:"type:varchar(255)"`
	CurrentTitle    string  `gorm:"type:varchar(255)"`
	CurrentCompany  string  `gorm:"type:varchar(255)"`
	TitleOverride   string  `gorm:"type:varchar(255)"`
	CompanyOverride string  `gorm:"type:varchar(255)"`
	Headline        string  `gorm:"type:text"`
	ProfilePicture  string  `gorm:"type:varchar(1024)"`
	Location        string  `gorm:"type:varchar(255)"`
	EngagementScore float64 `gorm:"not null;default:0"`
	QualityScore    float64 `gorm:"not null;default:0"`
	IsNotable       bool    `gorm:"not null;default:false;index"`
	IsFollower      bool    `gorm:"not null;default:false"`

	HasBeenEnriched       bool       `gorm:"not null;default:false"`
	NeedsEnrichment       bool       `gorm:"not null;default:false"`
	EnrichmentStatus      string     `gorm:"type:varchar(20);index"`
	EnrichmentPriority    int        `gorm:"not null;default:0"`
	EnrichmentSource      string     `gorm:"type:varchar(50)"`
	LastEnrichmentAttempt *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (PersonModel) TableName() string {
	return "people"
}

// ToDomain converts the persistence model to a domain Person.
func (m *PersonModel) ToDomain() *analytics.Person {
	return &analytics.Person{
		ID:                    m.ID,
		LinkedInURL:           m.LinkedInURL,
		Name:                  m.Name,
		CurrentTitle:          m.CurrentTitle,
		CurrentCompany:        m.CurrentCompany,
		TitleOverride:         m.TitleOverride,
		CompanyOverride:       m.CompanyOverride,
		Headline:              m.Headline,
		ProfilePicture:        m.ProfilePicture,
		Location:              m.Location,
		EngagementScore:       m.EngagementScore,
		QualityScore:          m.QualityScore,
		IsNotable:             m.IsNotable,
		IsFollower:            m.IsFollower,
		HasBeenEnriched:       m.HasBeenEnriched,
		NeedsEnrichment:       m.NeedsEnrichment,
		EnrichmentStatus:      analytics.EnrichmentStatus(m.EnrichmentStatus),
		EnrichmentPriority:    m.EnrichmentPriority,
		EnrichmentSource:      m.EnrichmentSource,
		LastEnrichmentAttempt: m.LastEnrichmentAttempt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

// PersonModelFromDomain creates a persistence model from a domain Person.
func PersonModelFromDomain(p *analytics.Person) *PersonModel {
	return &PersonModel{
		BaseModel:             BaseModel{ID: p.ID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
		LinkedInURL:           p.LinkedInURL,
		ProfileKey:            p.ProfileKey(),
		Name:                  p.Name,
		CurrentTitle:          p.CurrentTitle,
		CurrentCompany:        p.CurrentCompany,
		TitleOverride:         p.TitleOverride,
		CompanyOverride:       p.CompanyOverride,
		Headline:              p.Headline,
		ProfilePicture:        p.ProfilePicture,
		Location:              p.Location,
		EngagementScore:       p.EngagementScore,
		QualityScore:          p.QualityScore,
		IsNotable:             p.IsNotable,
		IsFollower:            p.IsFollower,
		HasBeenEnriched:       p.HasBeenEnriched,
		NeedsEnrichment:       p.NeedsEnrichment,
		EnrichmentStatus:      string(p.EnrichmentStatus),
		EnrichmentPriority:    p.EnrichmentPriority,
		EnrichmentSource:      p.EnrichmentSource,
		LastEnrichmentAttempt: p.LastEnrichmentAttempt,
	}
}

// EngagementModel is the persistence model for engagements. A null PersonID
// marks an orphan.
type EngagementModel struct {
	ID           uuid.UUID    `gorm:"type:uuid;primary_key"`
	PostID       uuid.UUID    `gorm:"type:uuid;not null;index"`
	PersonID     *uuid.UUID   `gorm:"type:uuid;index"`
	ProfileURL   string       `gorm:"type:varchar(512)"`
	ReactionType string       `gorm:"type:varchar(32)"`
	EngagedAt    *time.Time   `gorm:""`
	CreatedAt    time.Time    `gorm:"not null"`
	Person       *PersonModel `gorm:"foreignKey:PersonID"`
}

// TableName returns the table name for GORM
func (EngagementModel) TableName() string {
	return "engagements"
}

// ToDomain converts the persistence model to a domain Engagement.
func (m *EngagementModel) ToDomain() analytics.Engagement {
	e := analytics.Engagement{
		ID:           m.ID,
		PostID:       m.PostID,
		PersonID:     m.PersonID,
		ProfileURL:   m.ProfileURL,
		ReactionType: m.ReactionType,
		EngagedAt:    m.EngagedAt,
		CreatedAt:    m.CreatedAt,
	}
	if m.Person != nil {
		e.Person = m.Person.ToDomain()
	}
	return e
}

// EngagementModelFromDomain creates a persistence model from a domain Engagement.
func EngagementModelFromDomain(e *analytics.Engagement) *EngagementModel {
	return &EngagementModel{
		ID:           e.ID,
		PostID:       e.PostID,
		PersonID:     e.PersonID,
		ProfileURL:   e.ProfileURL,
		ReactionType: e.ReactionType,
		EngagedAt:    e.EngagedAt,
		CreatedAt:    e.CreatedAt,
	}
}

// CampaignModel is the persistence model for ad campaigns keyed by the
// platform's numeric id.
type CampaignModel struct {
	ID              string          `gorm:"type:varchar(64);primary_key"`
	AccountID       string          `gorm:"type:varchar(64);index"`
	CampaignGroupID string          `gorm:"type:varchar(64)"`
	Name            string          `gorm:"type:varchar(255)"`
	Description     string          `gorm:"type:text"`
	Status          string          `gorm:"type:varchar(32)"`
	Type            string          `gorm:"type:varchar(64)"`
	ScheduleStart   *time.Time      `gorm:""`
	ScheduleEnd     *time.Time      `gorm:""`
	TargetingJSON   string          `gorm:"column:targeting;type:text"`
	CreativeIDsJSON string          `gorm:"column:creative_ids;type:text"`
	DailyBudget     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	TotalBudget     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CampaignModel) TableName() string {
	return "campaigns"
}

// ToDomain converts the persistence model to a domain Campaign.
func (m *CampaignModel) ToDomain() *analytics.Campaign {
	c := &analytics.Campaign{
		ID:              m.ID,
		AccountID:       m.AccountID,
		CampaignGroupID: m.CampaignGroupID,
		Name:            m.Name,
		Description:     m.Description,
		Status:          m.Status,
		Type:            m.Type,
		DailyBudget:     m.DailyBudget,
		TotalBudget:     m.TotalBudget,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.ScheduleStart != nil {
		c.Schedule = &analytics.RunSchedule{Start: *m.ScheduleStart, End: m.ScheduleEnd}
	}
	if m.TargetingJSON != "" {
		if err := json.Unmarshal([]byte(m.TargetingJSON), &c.Targeting); err != nil {
			modelLogger.Warn("failed to parse targeting JSON",
				zap.String("campaign_id", m.ID),
				zap.Error(err))
		}
	}
	if m.CreativeIDsJSON != "" {
		if err := json.Unmarshal([]byte(m.CreativeIDsJSON), &c.CreativeIDs); err != nil {
			modelLogger.Warn("failed to parse creative ids JSON",
				zap.String("campaign_id", m.ID),
				zap.Error(err))
		}
	}
	return c
}

// CampaignModelFromDomain creates a persistence model from a domain Campaign.
func CampaignModelFromDomain(c *analytics.Campaign) *CampaignModel {
	m := &CampaignModel{
		ID:              c.ID,
		AccountID:       c.AccountID,
		CampaignGroupID: c.CampaignGroupID,
		Name:            c.Name,
		Description:     c.Description,
		Status:          c.Status,
		Type:            c.Type,
		DailyBudget:     c.DailyBudget,
		TotalBudget:     c.TotalBudget,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.Schedule != nil {
		start := c.Schedule.Start
		m.ScheduleStart = &start
		m.ScheduleEnd = c.Schedule.End
	}
	if !c.Targeting.IsEmpty() {
		if data, err := json.Marshal(c.Targeting); err == nil {
			m.TargetingJSON = string(data)
		}
	}
	if len(c.CreativeIDs) > 0 {
		if data, err := json.Marshal(c.CreativeIDs); err == nil {
			m.CreativeIDsJSON = string(data)
		}
	}
	return m
}

// CreativeModel is the persistence model for campaign creatives.
type CreativeModel struct {
	ID               string    `gorm:"type:varchar(64);primary_key"`
	CampaignID       string    `gorm:"type:varchar(64);not null;index"`
	Type             string    `gorm:"type:varchar(32)"`
	Status           string    `gorm:"type:varchar(32)"`
	Reference        string    `gorm:"type:varchar(512);index"`
	ShareURL         string    `gorm:"type:varchar(1024)"`
	UGCPostReference string    `gorm:"column:ugc_post_reference;type:varchar(512)"`
	Title            string    `gorm:"type:varchar(255)"`
	Text             string    `gorm:"type:text"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CreativeModel) TableName() string {
	return "creatives"
}

// ToDomain converts the persistence model to a domain Creative.
func (m *CreativeModel) ToDomain() analytics.Creative {
	return analytics.Creative{
		ID:               m.ID,
		CampaignID:       m.CampaignID,
		Type:             m.Type,
		Status:           m.Status,
		Reference:        m.Reference,
		ShareURL:         m.ShareURL,
		UGCPostReference: m.UGCPostReference,
		Title:            m.Title,
		Text:             m.Text,
	}
}

// CreativeModelFromDomain creates a persistence model from a domain Creative.
func CreativeModelFromDomain(c analytics.Creative) CreativeModel {
	return CreativeModel{
		ID:               c.ID,
		CampaignID:       c.CampaignID,
		Type:             c.Type,
		Status:           c.Status,
		Reference:        c.Reference,
		ShareURL:         c.ShareURL,
		UGCPostReference: c.UGCPostReference,
		Title:            c.Title,
		Text:             c.Text,
		UpdatedAt:        time.Now(),
	}
}

// CampaignAnalyticsModel is one reporting row, unique on (campaign, date).
type CampaignAnalyticsModel struct {
	CampaignID  string          `gorm:"type:varchar(64);primaryKey"`
	Date        time.Time       `gorm:"type:date;primaryKey"`
	Impressions int64           `gorm:"not null;default:0"`
	Clicks      int64           `gorm:"not null;default:0"`
	Engagements int64           `gorm:"not null;default:0"`
	Spend       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (CampaignAnalyticsModel) TableName() string {
	return "campaign_analytics"
}

// ToDomain converts the persistence model to a domain row.
func (m *CampaignAnalyticsModel) ToDomain() analytics.CampaignAnalytics {
	return analytics.CampaignAnalytics{
		CampaignID:  m.CampaignID,
		Date:        m.Date,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Engagements: m.Engagements,
		Spend:       m.Spend,
	}
}

// DemographicModel is an audience breakdown row, unique on
// (campaign, pivot type, pivot value).
type DemographicModel struct {
	CampaignID  string          `gorm:"type:varchar(64);primaryKey"`
	PivotType   string          `gorm:"type:varchar(32);primaryKey"`
	PivotValue  string          `gorm:"type:varchar(255);primaryKey"`
	Impressions int64           `gorm:"not null;default:0"`
	Clicks      int64           `gorm:"not null;default:0"`
	Engagements int64           `gorm:"not null;default:0"`
	Spend       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (DemographicModel) TableName() string {
	return "campaign_demographics"
}

// ToDomain converts the persistence model to a domain row.
func (m *DemographicModel) ToDomain() analytics.DemographicRow {
	return analytics.DemographicRow{
		CampaignID:  m.CampaignID,
		PivotType:   m.PivotType,
		PivotValue:  m.PivotValue,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Engagements: m.Engagements,
		Spend:       m.Spend,
	}
}

// PostCampaignModel is the post to campaign junction.
type PostCampaignModel struct {
	PostID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CampaignID      string    `gorm:"type:varchar(64);primaryKey;index"`
	AssociationType string    `gorm:"type:varchar(20);not null"`
	Confidence      float64   `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PostCampaignModel) TableName() string {
	return "post_campaigns"
}

// ToDomain converts the persistence model to a domain link.
func (m *PostCampaignModel) ToDomain() analytics.PostCampaignLink {
	return analytics.PostCampaignLink{
		PostID:          m.PostID,
		CampaignID:      m.CampaignID,
		AssociationType: analytics.AssociationType(m.AssociationType),
		Confidence:      m.Confidence,
		CreatedAt:       m.CreatedAt,
	}
}

// ScraperRunModel remembers one scraper run.
type ScraperRunModel struct {
	ID         string     `gorm:"type:varchar(64);primary_key"`
	PostURL    string     `gorm:"type:varchar(512);not null;index"`
	Status     string     `gorm:"type:varchar(20);not null"`
	DatasetID  string     `gorm:"type:varchar(64)"`
	ItemCount  int        `gorm:"not null;default:0"`
	StartedAt  time.Time  `gorm:"not null;index"`
	FinishedAt *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (ScraperRunModel) TableName() string {
	return "scraper_runs"
}

// ToDomain converts the persistence model to a domain run.
func (m *ScraperRunModel) ToDomain() *analytics.ScraperRun {
	return &analytics.ScraperRun{
		ID:         m.ID,
		PostURL:    m.PostURL,
		Status:     analytics.RunStatus(m.Status),
		DatasetID:  m.DatasetID,
		ItemCount:  m.ItemCount,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// AnalysisModel stores a finished analysis payload.
type AnalysisModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	PostURL   string    `gorm:"type:varchar(512);not null;index"`
	PostID    string    `gorm:"type:varchar(64)"`
	Status    string    `gorm:"type:varchar(32);not null"`
	Payload   []byte    `gorm:"type:bytea"`
	CreatedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (AnalysisModel) TableName() string {
	return "analyses"
}

// ToDomain converts the persistence model to a domain record.
func (m *AnalysisModel) ToDomain() *analytics.AnalysisRecord {
	return &analytics.AnalysisRecord{
		ID:        m.ID,
		PostURL:   m.PostURL,
		PostID:    m.PostID,
		Status:    m.Status,
		Payload:   m.Payload,
		CreatedAt: m.CreatedAt,
	}
}

// All returns every analytics model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&PostModel{},
		&PersonModel{},
		&EngagementModel{},
		&CampaignModel{},
		&CreativeModel{},
		&CampaignAnalyticsModel{},
		&DemographicModel{},
		&PostCampaignModel{},
		&ScraperRunModel{},
		&AnalysisModel{},
	}
}
