package analysis

import (
	"strings"

	"github.com/campaignlens/backend/internal/domain/analytics"
)

const (
	// enrichmentThreshold is the completeness below which a scraped person
	// is flagged for enrichment.
	enrichmentThreshold = 0.8
	// sparseThreshold is the completeness below which a scraped person
	// counts as missing person data, although it is still kept.
	sparseThreshold = 0.5
)

// DataQuality counts what happened to the scraped items.
type DataQuality struct {
	FromScraper       int     `json:"from_scraper"`
	Valid             int     `json:"valid"`
	MissingPersonData int     `json:"missing_person_data"`
	Duplicates        int     `json:"duplicates"`
	AlreadyPersisted  int     `json:"already_persisted"`
	NeedsEnrichment   int     `json:"needs_enrichment"`
	EngagementCount   int     `json:"engagement_count"`
	MatchConfidence   float64 `json:"campaign_correlation_confidence"`
}

type cleanItem struct {
	reaction analytics.ScrapedReaction
	person   *analytics.Person
}

// cleanReactions drops items without a profile URL or name, repeated
// profiles and profiles already engaged on the post. The rest become
// person snapshots scored over the six profile fields.
func cleanReactions(items []analytics.ScrapedReaction, existing []analytics.Engagement) ([]cleanItem, DataQuality) {
	q := DataQuality{FromScraper: len(items)}

	persisted := make(map[string]struct{}, len(existing))
	for i := range existing {
		if key := existing[i].ProfileKey(); key != "" {
			persisted[key] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(items))
	clean := make([]cleanItem, 0, len(items))
	for _, item := range items {
		if !present(item.LinkedInURL) || !present(item.Name) {
			q.MissingPersonData++
			continue
		}
		key := analytics.NormalizeProfileURL(item.LinkedInURL)
		if _, dup := seen[key]; dup {
			q.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if _, ok := persisted[key]; ok {
			q.AlreadyPersisted++
			continue
		}

		person := item.ToPerson()
		person.QualityScore = person.Completeness()
		if person.QualityScore < sparseThreshold {
			q.MissingPersonData++
		}
		if person.QualityScore < enrichmentThreshold {
			person.NeedsEnrichment = true
			q.NeedsEnrichment++
		}
		clean = append(clean, cleanItem{reaction: item, person: person})
		q.Valid++
	}
	return clean, q
}

func present(s string) bool {
	return strings.TrimSpace(s) != ""
}
