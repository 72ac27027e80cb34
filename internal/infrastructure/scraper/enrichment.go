package scraper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"go.uber.org/zap"
)

var (
	_ analytics.Scraper         = (*Client)(nil)
	_ analytics.ProfileEnricher = (*Client)(nil)
)

// TriggerProfileEnrichment starts the profile actor for the given URLs.
func (c *Client) TriggerProfileEnrichment(ctx context.Context, profileURLs []string) (*analytics.ScraperRun, error) {
	if len(profileURLs) == 0 {
		return nil, fmt.Errorf("apify trigger_enrichment: no profile urls")
	}
	r, err := c.startRun(ctx, "trigger_enrichment", c.enrichmentActor, map[string]any{
		"linkedinUrls":        profileURLs,
		"includePersonalInfo": true,
		"includeExperience":   true,
		"includeEducation":    true,
		"includeSkills":       true,
	})
	if err != nil {
		return nil, err
	}
	run := r.toDomain("")
	if run.StartedAt.IsZero() {
		run.StartedAt = c.now()
	}
	return run, nil
}

type apiProfile struct {
	Headline           string `json:"headline"`
	JobTitle           string `json:"jobTitle"`
	Title              string `json:"title"`
	CompanyName        string `json:"companyName"`
	Company            string `json:"company"`
	AddressWithCountry string `json:"addressWithCountry"`
	Location           string `json:"location"`
	ProfilePic         string `json:"profilePic"`
	ProfilePicture     string `json:"profilePicture"`
}

func (p apiProfile) toDomain() *analytics.ProfileData {
	return &analytics.ProfileData{
		Headline:       p.Headline,
		Title:          orDefault(p.JobTitle, p.Title),
		Company:        orDefault(p.CompanyName, p.Company),
		Location:       orDefault(p.AddressWithCountry, p.Location),
		ProfilePicture: orDefault(p.ProfilePic, p.ProfilePicture),
	}
}

// EnrichProfile scrapes one profile and waits for the result, polling at the
// enrichment interval up to the enrichment timeout.
func (c *Client) EnrichProfile(ctx context.Context, profileURL string) (*analytics.ProfileData, error) {
	run, err := c.TriggerProfileEnrichment(ctx, []string{profileURL})
	if err != nil {
		return nil, err
	}
	done, err := c.WaitForRun(ctx, run.ID, c.enrichmentPoll, c.enrichmentTimeout)
	if err != nil {
		return nil, err
	}

	data, err := c.datasetItems(ctx, "fetch_profile", done.DatasetID)
	if err != nil {
		return nil, err
	}
	var profiles []apiProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("decode profile dataset %s: %w", done.DatasetID, err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrEmptyDataset, done.ID)
	}
	c.logger.Debug("Profile enriched", zap.String("run_id", done.ID), zap.String("profile_url", profileURL))
	return profiles[0].toDomain(), nil
}
