package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Engagement is a reaction by a person on a post. An engagement without a
// linked person is orphaned.
type Engagement struct {
	ID           uuid.UUID
	PostID       uuid.UUID
	PersonID     *uuid.UUID
	ProfileURL   string
	ReactionType string
	EngagedAt    *time.Time
	CreatedAt    time.Time

	// Person is populated when the engagement is loaded joined with its person.
	Person *Person
}

// IsOrphaned reports whether no person is linked.
func (e *Engagement) IsOrphaned() bool {
	return e.PersonID == nil
}

// ProfileKey returns the case-insensitive profile identity of the engager,
// preferring the linked person's URL.
func (e *Engagement) ProfileKey() string {
	if e.Person != nil && e.Person.LinkedInURL != "" {
		return e.Person.ProfileKey()
	}
	return NormalizeProfileURL(e.ProfileURL)
}

// OccurredAt returns when the engagement happened, falling back to creation time.
func (e *Engagement) OccurredAt() time.Time {
	if e.EngagedAt != nil {
		return *e.EngagedAt
	}
	return e.CreatedAt
}

// ReactionOrDefault returns the reaction type, defaulting to "like".
func (e *Engagement) ReactionOrDefault() string {
	if e.ReactionType == "" {
		return "like"
	}
	return e.ReactionType
}

// ScrapedReaction is one item of a scraper dataset.
type ScrapedReaction struct {
	LinkedInURL    string `json:"linkedinUrl"`
	Name           string `json:"name"`
	Title          string `json:"title,omitempty"`
	Company        string `json:"company,omitempty"`
	Headline       string `json:"headline,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	Location       string `json:"location,omitempty"`
	ReactionType   string `json:"reactionType,omitempty"`
}

// ToPerson builds a person snapshot from the scraped item.
func (r ScrapedReaction) ToPerson() *Person {
	now := time.Now()
	p := &Person{
		ID:             uuid.New(),
		LinkedInURL:    r.LinkedInURL,
		Name:           r.Name,
		CurrentTitle:   r.Title,
		CurrentCompany: r.Company,
		Headline:       r.Headline,
		ProfilePicture: r.ProfilePicture,
		Location:       r.Location,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.QualityScore = p.Completeness()
	return p
}
