package reconciliation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/google/uuid"
)

// analyzer computes the read-only part of a report. It fills metrics as it
// goes, so one analyzer serves exactly one post.
type analyzer struct {
	cfg     config.ReconciliationConfig
	now     time.Time
	metrics Metrics
}

func (a *analyzer) engagementQuality(rows []analytics.Engagement) EngagementAnalysis {
	out := EngagementAnalysis{ByReactionType: make(map[string]int)}
	staleBefore := a.now.Add(-a.cfg.MaxEngagementAge)
	for i := range rows {
		e := &rows[i]
		if e.Person != nil {
			out.WithPersonData++
			a.metrics.ValidEngagements++
		} else {
			out.WithoutPersonData++
			a.metrics.MissingPersonData++
		}
		if e.OccurredAt().After(staleBefore) {
			out.Recent++
		} else {
			out.Stale++
		}
		out.ByReactionType[e.ReactionOrDefault()]++
	}
	return out
}

// personQuality scores each distinct engaged person once.
func (a *analyzer) personQuality(rows []analytics.Engagement) PersonAnalysis {
	out := PersonAnalysis{MissingFields: make(map[string]int)}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for i := range rows {
		p := rows[i].Person
		if p == nil {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		score, missing := p.QualityBreakdown()
		for _, f := range missing {
			out.MissingFields[f]++
		}
		switch {
		case score >= a.cfg.HighQualityThreshold:
			out.HighQuality++
		case score >= a.cfg.MediumQualityThreshold:
			out.MediumQuality++
		default:
			out.LowQuality++
			a.metrics.LowQualityPersons++
			if strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.LinkedInURL) != "" {
				out.EnrichmentCandidates = append(out.EnrichmentCandidates, EnrichmentCandidate{
					PersonID:      p.ID,
					Name:          p.Name,
					LinkedInURL:   p.LinkedInURL,
					MissingFields: missing,
					QualityScore:  score,
				})
				a.metrics.EnrichmentCandidates++
			}
		}
	}
	return out
}

// duplicates groups engagements by profile key. Within a group the most
// complete person snapshot is kept, then the newest record, then the lowest
// id so the choice is deterministic.
func (a *analyzer) duplicates(rows []analytics.Engagement) DuplicateAnalysis {
	groups := make(map[string][]*analytics.Engagement)
	var keys []string
	for i := range rows {
		key := rows[i].ProfileKey()
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], &rows[i])
	}
	sort.Strings(keys)

	var out DuplicateAnalysis
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return better(group[i], group[j]) })
		dg := DuplicateGroup{
			ProfileKey:       key,
			KeepID:           group[0].ID,
			KeepCompleteness: group[0].Person.Completeness(),
			RemoveIDs:        make([]uuid.UUID, 0, len(group)-1),
		}
		for _, e := range group[1:] {
			dg.RemoveIDs = append(dg.RemoveIDs, e.ID)
		}
		out.Groups = append(out.Groups, dg)
		out.TotalDuplicates += len(dg.RemoveIDs)
	}
	a.metrics.DuplicateEngagements = out.TotalDuplicates
	return out
}

func better(x, y *analytics.Engagement) bool {
	cx, cy := x.Person.Completeness(), y.Person.Completeness()
	if cx != cy {
		return cx > cy
	}
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	return x.ID.String() < y.ID.String()
}

// compare partitions scraper items and persisted engagements by profile
// key. Items without a URL cannot match and count as missing; engagements
// without a key count as extra.
func compare(rows []analytics.Engagement, scraped []analytics.ScrapedReaction) *SourceComparison {
	out := &SourceComparison{
		ScraperCount:      len(scraped),
		DatabaseCount:     len(rows),
		Discrepancy:       len(scraped) - len(rows),
		MissingInDatabase: []analytics.ScrapedReaction{},
		ExtraInDatabase:   []ExtraRecord{},
	}

	stored := make(map[string]struct{}, len(rows))
	for i := range rows {
		if key := rows[i].ProfileKey(); key != "" {
			stored[key] = struct{}{}
		}
	}
	reported := make(map[string]struct{}, len(scraped))
	for _, item := range scraped {
		key := analytics.NormalizeProfileURL(item.LinkedInURL)
		if key != "" {
			reported[key] = struct{}{}
		}
		if _, ok := stored[key]; ok && key != "" {
			out.MatchedCount++
			continue
		}
		out.MissingInDatabase = append(out.MissingInDatabase, item)
	}
	for i := range rows {
		key := rows[i].ProfileKey()
		if _, ok := reported[key]; ok && key != "" {
			out.MatchedDatabaseCount++
			continue
		}
		out.ExtraInDatabase = append(out.ExtraInDatabase, ExtraRecord{
			EngagementID: rows[i].ID,
			ProfileURL:   rows[i].ProfileURL,
		})
	}
	return out
}

func (a *analyzer) issues(orphans int, dups DuplicateAnalysis, persons PersonAnalysis) []Issue {
	issues := []Issue{}
	if orphans > 0 {
		issues = append(issues, Issue{
			Type:        IssueOrphanedEngagements,
			Severity:    string(PriorityHigh),
			Count:       orphans,
			Description: fmt.Sprintf("%d engagements without person records", orphans),
		})
	}
	if dups.TotalDuplicates > 0 {
		issues = append(issues, Issue{
			Type:        IssueDuplicates,
			Severity:    string(PriorityMedium),
			Count:       dups.TotalDuplicates,
			Description: fmt.Sprintf("%d duplicate engagements across %d profiles", dups.TotalDuplicates, len(dups.Groups)),
		})
	}
	if persons.LowQuality > 0 {
		issues = append(issues, Issue{
			Type:        IssueLowQualityPersons,
			Severity:    string(PriorityLow),
			Count:       persons.LowQuality,
			Description: fmt.Sprintf("%d persons with incomplete profiles", persons.LowQuality),
		})
	}
	return issues
}

func recommendations(m Metrics, cmp *SourceComparison, cfg config.ReconciliationConfig) []Recommendation {
	recs := []Recommendation{}
	if m.OrphanedEngagements > 0 {
		recs = append(recs, Recommendation{
			Priority:    PriorityHigh,
			Type:        RecommendFixOrphans,
			Description: fmt.Sprintf("Fix %d orphaned engagement records", m.OrphanedEngagements),
			Action:      "Run person record linking or re-import missing data",
		})
	}
	if m.DuplicateEngagements > cfg.DuplicateRecommendation {
		recs = append(recs, Recommendation{
			Priority:    PriorityHigh,
			Type:        RecommendRemoveDups,
			Description: fmt.Sprintf("Remove %d duplicate engagement records", m.DuplicateEngagements),
			Action:      "Run automated duplicate cleanup",
		})
	}
	if m.EnrichmentCandidates > 0 {
		recs = append(recs, Recommendation{
			Priority:    PriorityMedium,
			Type:        RecommendEnrichPersons,
			Description: fmt.Sprintf("Enrich %d incomplete person records", m.EnrichmentCandidates),
			Action:      "Run profile enrichment for missing data",
		})
	}
	if cmp != nil && abs(cmp.Discrepancy) > cfg.DiscrepancyThreshold {
		recs = append(recs, Recommendation{
			Priority:    PriorityMedium,
			Type:        RecommendResyncScraper,
			Description: fmt.Sprintf("Sync missing data (%d engagement discrepancy)", cmp.Discrepancy),
			Action:      "Re-run the reactions scraper or investigate the data source",
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority.rank() < recs[j].Priority.rank() })
	return recs
}

func summarize(m Metrics) Summary {
	total := m.OrphanedEngagements + m.DuplicateEngagements + m.LowQualityPersons
	score := 0.0
	if m.TotalEngagements > 0 {
		score = float64(m.ValidEngagements) / float64(m.TotalEngagements) * 100
	}
	s := Summary{
		DataQualityScore: int(score + 0.5),
		TotalIssues:      total,
	}
	switch {
	case total == 0:
		s.Status = StatusExcellent
	case total <= 5:
		s.Status = StatusGood
	case total <= 20:
		s.Status = StatusFair
	default:
		s.Status = StatusPoor
	}
	switch {
	case score >= 95 && total == 0:
		s.Message = "Excellent data quality - no issues detected"
	case score >= 85 && total <= 5:
		s.Message = "Good data quality with minor issues that can be easily resolved"
	case score >= 70:
		s.Message = "Fair data quality - some cleanup recommended to improve accuracy"
	default:
		s.Message = "Poor data quality - significant cleanup required before analysis"
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
