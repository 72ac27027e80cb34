package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPerson_Completeness(t *testing.T) {
	full := &Person{
		Name: "Jane", LinkedInURL: "https://linkedin.com/in/jane", CurrentTitle: "CMO",
		CurrentCompany: "Acme", Headline: "Marketing", ProfilePicture: "https://img",
	}
	assert.Equal(t, 1.0, full.Completeness())

	partial := &Person{Name: "Jane", LinkedInURL: "https://linkedin.com/in/jane", CurrentTitle: "  "}
	assert.InDelta(t, 2.0/6.0, partial.Completeness(), 1e-9)

	var missing *Person
	assert.Equal(t, 0.0, missing.Completeness())
}

func TestPerson_QualityBreakdown(t *testing.T) {
	p := &Person{Name: "Jane", LinkedInURL: "u", Headline: "h"}

	score, missing := p.QualityBreakdown()

	assert.InDelta(t, 2.5/5.0, score, 1e-9)
	assert.Equal(t, []string{"current_title", "current_company"}, missing)
}

func TestPerson_Overrides(t *testing.T) {
	p := &Person{CurrentTitle: "Engineer", TitleOverride: "VP Engineering", CurrentCompany: "Acme"}

	assert.Equal(t, "VP Engineering", p.EffectiveTitle())
	assert.Equal(t, "Acme", p.EffectiveCompany())
}

func TestPerson_RequiresEnrichment(t *testing.T) {
	now := time.Now()
	recent := now.Add(-24 * time.Hour)
	stale := now.Add(-31 * 24 * time.Hour)

	assert.True(t, (&Person{}).RequiresEnrichment(now))
	assert.False(t, (&Person{HasBeenEnriched: true, LastEnrichmentAttempt: &recent}).RequiresEnrichment(now))
	assert.True(t, (&Person{HasBeenEnriched: true, LastEnrichmentAttempt: &stale}).RequiresEnrichment(now))
}

func TestEngagement_ProfileKey(t *testing.T) {
	e := &Engagement{ProfileURL: "HTTPS://LinkedIn.com/in/Jane"}
	assert.Equal(t, "https://linkedin.com/in/jane", e.ProfileKey())
	assert.True(t, e.IsOrphaned())

	e.Person = &Person{LinkedInURL: "https://linkedin.com/in/JOHN"}
	assert.Equal(t, "https://linkedin.com/in/john", e.ProfileKey())
	assert.Equal(t, "like", e.ReactionOrDefault())
}
