package analytics

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnrichmentStatus tracks a person's place in the enrichment queue.
type EnrichmentStatus string

const (
	EnrichmentNone       EnrichmentStatus = ""
	EnrichmentPending    EnrichmentStatus = "pending"
	EnrichmentInProgress EnrichmentStatus = "in_progress"
	EnrichmentCompleted  EnrichmentStatus = "completed"
	EnrichmentFailed     EnrichmentStatus = "failed"
)

// Person is a LinkedIn member identified by profile URL.
type Person struct {
	ID              uuid.UUID
	LinkedInURL     string
	Name            string
	CurrentTitle    string
	CurrentCompany  string
	TitleOverride   string
	CompanyOverride string
	Headline        string
	ProfilePicture  string
	Location        string
	EngagementScore float64
	QualityScore    float64
	IsNotable       bool
	IsFollower      bool

	HasBeenEnriched       bool
	NeedsEnrichment       bool
	EnrichmentStatus      EnrichmentStatus
	EnrichmentPriority    int
	EnrichmentSource      string
	LastEnrichmentAttempt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeProfileURL returns the comparison key for a profile URL.
func NormalizeProfileURL(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// ProfileKey returns the case-insensitive identity of the person.
func (p *Person) ProfileKey() string {
	return NormalizeProfileURL(p.LinkedInURL)
}

// EffectiveTitle returns the manual override when set, else the scraped title.
func (p *Person) EffectiveTitle() string {
	if p.TitleOverride != "" {
		return p.TitleOverride
	}
	return p.CurrentTitle
}

// EffectiveCompany returns the manual override when set, else the scraped company.
func (p *Person) EffectiveCompany() string {
	if p.CompanyOverride != "" {
		return p.CompanyOverride
	}
	return p.CurrentCompany
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Completeness is the share of the six profile fields that are populated.
// It ranks duplicate snapshots of the same person.
func (p *Person) Completeness() float64 {
	if p == nil {
		return 0
	}
	fields := []string{p.Name, p.LinkedInURL, p.CurrentTitle, p.CurrentCompany, p.Headline, p.ProfilePicture}
	n := 0
	for _, f := range fields {
		if present(f) {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

// CoreFields are the fields scored by QualityBreakdown.
var CoreFields = []string{"name", "linkedin_url", "current_title", "current_company"}

// QualityBreakdown scores the four core fields plus half credit each for
// picture and headline, normalized to [0,1]. It also returns the missing core
// fields by column name.
func (p *Person) QualityBreakdown() (float64, []string) {
	values := []string{p.Name, p.LinkedInURL, p.CurrentTitle, p.CurrentCompany}
	score := 0.0
	var missing []string
	for i, v := range values {
		if present(v) {
			score++
		} else {
			missing = append(missing, CoreFields[i])
		}
	}
	if present(p.ProfilePicture) {
		score += 0.5
	}
	if present(p.Headline) {
		score += 0.5
	}
	return score / float64(len(values)+1), missing
}

// EnrichmentStaleAfter is how long a previous enrichment attempt stays valid.
const EnrichmentStaleAfter = 30 * 24 * time.Hour

// RequiresEnrichment reports whether the person was never enriched or the
// last attempt is older than EnrichmentStaleAfter.
func (p *Person) RequiresEnrichment(now time.Time) bool {
	if !p.HasBeenEnriched {
		return true
	}
	if p.LastEnrichmentAttempt == nil {
		return false
	}
	return now.Sub(*p.LastEnrichmentAttempt) > EnrichmentStaleAfter
}
