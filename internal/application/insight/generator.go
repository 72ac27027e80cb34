// Package insight turns correlated and reconciled engagement data into
// business metrics: targeting hit rate, quality score and cost efficiency.
package insight

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	unknownCompany    = "Unknown"
	topCompanyHits    = 5
	topCompanies      = 10
	topInfluencers    = 10
	topPeople         = 15
	qualityCompanyMin = 0.3
	expansionScore    = 0.7
)

var influenceKeywords = []string{"ceo", "cto", "vp", "vice president", "director", "head of", "chief", "founder"}

// DefaultConfig returns the standard insight thresholds and benchmarks.
func DefaultConfig() config.InsightConfig {
	return config.InsightConfig{
		MinimumCompanySize:        2,
		HighValueThreshold:        5,
		TargetHitRateThreshold:    0.3,
		BenchmarkEngagementRate:   0.003,
		BenchmarkTargetingRate:    0.15,
		BenchmarkCostPerImpress:   0.001,
		BenchmarkCostPerEngage:    25,
		BenchmarkQualityEngageMul: 1.5,
	}
}

// Input is the correlated data of one post.
type Input struct {
	Post        *analytics.Post
	Campaigns   []analytics.Campaign
	Engagements []analytics.Engagement
	Analytics   []analytics.CampaignAnalytics
}

// Generator computes insight reports.
type Generator struct {
	cfg      config.InsightConfig
	resolver analytics.URNResolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerator creates a Generator. resolver names targeted companies and
// titles; without one the raw URNs are compared.
func NewGenerator(cfg config.InsightConfig, resolver analytics.URNResolver, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, resolver: resolver, logger: logger, now: time.Now}
}

type targets struct {
	companies []string
	titles    []string
}

// Generate builds the report. It never fails; sections without enough data
// carry a message instead of numbers.
func (g *Generator) Generate(ctx context.Context, in Input) *Report {
	ctx, span := telemetry.StartSpan(ctx, "insight.generate",
		telemetry.SpanAttrEngagementRows, len(in.Engagements))
	defer span.End()

	t := g.targets(ctx, in.Campaigns)
	spend := totalSpend(in)

	r := &Report{GeneratedAt: g.now()}
	if in.Post != nil {
		r.PostID = in.Post.ID
		r.PostURL = in.Post.URL
	}
	r.Targeting = g.targeting(t, in)
	r.Quality = g.quality(in.Engagements, r.Targeting.OverallScore)
	r.Cost = g.cost(spend, in.Engagements, r.Targeting)
	r.Companies = g.companies(in.Engagements, t.companies)
	r.People = g.people(in.Engagements)
	r.Campaigns = g.campaignIntelligence(in, spend, r.Targeting)
	r.Recommendations = g.recommendations(in, r)
	r.Benchmarks = g.benchmarks(in, r.Targeting)
	r.Summary = g.summary(len(in.Engagements), r)

	g.logger.Debug("Insights generated",
		zap.String("post_url", r.PostURL),
		zap.String("status", r.Summary.Status),
		zap.Float64("quality", r.Quality.Overall))
	return r
}

func (g *Generator) targets(ctx context.Context, campaigns []analytics.Campaign) targets {
	var t targets
	seen := map[string]struct{}{}
	add := func(dst *[]string, urn string) {
		label := urn
		if g.resolver != nil {
			label = g.resolver.Resolve(ctx, urn)
		}
		label = lower(label)
		if label == "" {
			return
		}
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		*dst = append(*dst, label)
	}
	for i := range campaigns {
		for _, urn := range campaigns[i].Targeting.IncludeURNs(analytics.FacetType.IsCompany) {
			add(&t.companies, urn)
		}
		for _, urn := range campaigns[i].Targeting.IncludeURNs(analytics.FacetType.IsTitle) {
			add(&t.titles, urn)
		}
	}
	return t
}

func (g *Generator) targeting(t targets, in Input) TargetingEffectiveness {
	var out TargetingEffectiveness
	if len(in.Campaigns) == 0 {
		out.Message = "No campaign data available for targeting analysis"
		return out
	}
	rows := in.Engagements
	if len(rows) == 0 {
		out.Message = "No engagement data available"
		return out
	}

	var sum float64
	var facets int
	if len(t.companies) > 0 {
		out.Companies = companyPenetration(t.companies, rows)
		sum += out.Companies.HitRate
		facets++
	}
	if len(t.titles) > 0 {
		out.Titles = titlePenetration(t.titles, rows)
		sum += out.Titles.HitRate
		facets++
	}
	if facets > 0 {
		out.OverallScore = sum / float64(facets)
	}
	out.QualityRatio = float64(g.highValue(rows)) / float64(len(rows))
	out.Interpretation = interpretTargeting(out.OverallScore)
	return out
}

func companyPenetration(targets []string, rows []analytics.Engagement) *CompanyPenetration {
	counts := map[string]int{}
	var targetEngagements int
	for i := range rows {
		p := rows[i].Person
		if p == nil {
			continue
		}
		company := lower(p.EffectiveCompany())
		if company == "" || !overlapsAny(company, targets) {
			continue
		}
		counts[company]++
		targetEngagements++
	}

	hits := make([]CompanyHit, 0, len(counts))
	for company, n := range counts {
		hits = append(hits, CompanyHit{Company: company, Engagements: n})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Engagements != hits[j].Engagements {
			return hits[i].Engagements > hits[j].Engagements
		}
		return hits[i].Company < hits[j].Company
	})

	out := &CompanyPenetration{
		TargetCompanies:   len(targets),
		CompaniesHit:      len(hits),
		HitRate:           math.Min(1, float64(len(hits))/float64(len(targets))),
		ConcentrationRate: float64(targetEngagements) / float64(len(rows)),
		TopPerformers:     hits,
	}
	if len(out.TopPerformers) > topCompanyHits {
		out.TopPerformers = out.TopPerformers[:topCompanyHits]
	}
	return out
}

func titlePenetration(targets []string, rows []analytics.Engagement) *TitlePenetration {
	matches := map[string]int{}
	var total int
	for i := range rows {
		p := rows[i].Person
		if p == nil {
			continue
		}
		title := lower(p.EffectiveTitle())
		if title == "" {
			continue
		}
		matched := false
		for _, kw := range targets {
			if strings.Contains(title, kw) {
				matches[kw]++
				matched = true
			}
		}
		if matched {
			total++
		}
	}
	return &TitlePenetration{
		TargetTitles:  len(targets),
		TitlesMatched: len(matches),
		HitRate:       float64(total) / float64(len(rows)),
		TotalMatches:  total,
		MatchDetails:  matches,
	}
}

func (g *Generator) quality(rows []analytics.Engagement, targeting float64) QualityScore {
	if len(rows) == 0 {
		return QualityScore{Interpretation: "No engagement data available"}
	}
	n := float64(len(rows))
	missing := 0
	companies := map[string]struct{}{}
	for i := range rows {
		p := rows[i].Person
		if p == nil {
			missing++
			continue
		}
		if c := lower(p.EffectiveCompany()); c != "" {
			companies[c] = struct{}{}
		}
	}
	c := QualityComponents{
		DataQuality:        math.Max(0, 1-float64(missing)/n),
		Diversity:          float64(len(companies)) / n,
		HighValueRate:      float64(g.highValue(rows)) / n,
		TargetingAlignment: targeting,
	}
	weighted := c.DataQuality*0.30 + c.Diversity*0.25 + c.HighValueRate*0.25 + c.TargetingAlignment*0.20
	overall := math.Round(weighted*100) / 10
	return QualityScore{
		Overall:        overall,
		Components:     c,
		Interpretation: interpretQuality(overall),
	}
}

func (g *Generator) cost(spend decimal.Decimal, rows []analytics.Engagement, t TargetingEffectiveness) CostEfficiency {
	out := CostEfficiency{TotalSpend: spend}
	if !spend.IsPositive() || len(rows) == 0 {
		out.Message = "Insufficient cost data for analysis"
		return out
	}
	out.CostPerEngagement = spend.Div(decimal.NewFromInt(int64(len(rows)))).Round(2)
	if q := g.highValue(rows); q > 0 {
		out.CostPerQualityEngagement = spend.Div(decimal.NewFromInt(int64(q))).Round(2)
	}
	if t.Companies != nil && t.Companies.CompaniesHit > 0 {
		out.CostPerTargetHit = spend.Div(decimal.NewFromInt(int64(t.Companies.CompaniesHit))).Round(2)
	}

	benchmark := decimal.NewFromFloat(g.cfg.BenchmarkCostPerEngage)
	if benchmark.IsPositive() {
		out.BenchmarkRatio = out.CostPerEngagement.Div(benchmark).InexactFloat64()
		if out.CostPerEngagement.LessThan(benchmark) {
			out.Performance = "above"
		} else {
			out.Performance = "below"
		}
		out.Interpretation = interpretCost(out.BenchmarkRatio)
	}
	return out
}

type companyAcc struct {
	stats  CompanyStats
	people map[string]struct{}
	titles map[string]struct{}
}

func (g *Generator) companies(rows []analytics.Engagement, targets []string) CompanyPerformance {
	byKey := map[string]*companyAcc{}
	var order []string
	for i := range rows {
		p := rows[i].Person
		name := unknownCompany
		if p != nil && strings.TrimSpace(p.EffectiveCompany()) != "" {
			name = strings.TrimSpace(p.EffectiveCompany())
		}
		key := lower(name)
		acc, ok := byKey[key]
		if !ok {
			acc = &companyAcc{
				stats:  CompanyStats{Name: name},
				people: map[string]struct{}{},
				titles: map[string]struct{}{},
			}
			acc.stats.IsTargetCompany = name != unknownCompany && overlapsAny(key, targets)
			byKey[key] = acc
			order = append(order, key)
		}
		acc.stats.Engagements++
		if p == nil {
			continue
		}
		if k := p.ProfileKey(); k != "" {
			acc.people[k] = struct{}{}
		}
		if p.EngagementScore >= g.cfg.HighValueThreshold {
			acc.stats.HighValueEngagements++
		}
		if t := lower(p.EffectiveTitle()); t != "" {
			acc.titles[t] = struct{}{}
		}
	}

	all := make([]CompanyStats, 0, len(order))
	for _, key := range order {
		acc := byKey[key]
		s := acc.stats
		s.UniquePeople = len(acc.people)
		s.TitleDiversity = len(acc.titles)
		s.PenetrationRate = 1
		if s.UniquePeople > 1 {
			s.PenetrationRate = float64(s.Engagements) / float64(s.UniquePeople)
		}
		s.QualityRate = float64(s.HighValueEngagements) / float64(s.Engagements)
		all = append(all, s)
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.QualityRate != b.QualityRate {
			return a.QualityRate > b.QualityRate
		}
		if a.UniquePeople != b.UniquePeople {
			return a.UniquePeople > b.UniquePeople
		}
		return a.Engagements > b.Engagements
	})

	out := CompanyPerformance{TotalCompanies: len(all), Insights: []string{}}
	out.TopPerformers = all
	if len(out.TopPerformers) > topCompanies {
		out.TopPerformers = out.TopPerformers[:topCompanies]
	}
	var penetrationSum float64
	highQuality := 0
	for _, s := range all {
		penetrationSum += s.PenetrationRate
		if s.QualityRate > 0.5 {
			highQuality++
		}
		if s.Name == unknownCompany {
			continue
		}
		if s.QualityRate > qualityCompanyMin {
			out.QualityCompanies = append(out.QualityCompanies, s)
		}
		if s.UniquePeople >= g.cfg.MinimumCompanySize {
			out.PenetrationLeaders = append(out.PenetrationLeaders, s)
		}
	}
	if len(all) > 0 {
		out.Insights = append(out.Insights,
			fmt.Sprintf("Average company penetration: %.1f engagements per person", penetrationSum/float64(len(all))))
	}
	if highQuality > 0 {
		out.Insights = append(out.Insights,
			fmt.Sprintf("%d companies show high-quality engagement patterns", highQuality))
	}
	return out
}

func (g *Generator) people(rows []analytics.Engagement) PeopleInsights {
	byKey := map[string]*PersonStats{}
	reactions := map[string]map[string]struct{}{}
	var order []string
	for i := range rows {
		e := &rows[i]
		p := e.Person
		if p == nil || p.ProfileKey() == "" {
			continue
		}
		key := p.ProfileKey()
		s, ok := byKey[key]
		if !ok {
			s = &PersonStats{
				PersonID:        p.ID,
				Name:            p.Name,
				LinkedInURL:     p.LinkedInURL,
				Title:           p.EffectiveTitle(),
				Company:         p.EffectiveCompany(),
				EngagementScore: p.EngagementScore,
				Influence:       influence(p.EffectiveTitle()),
			}
			byKey[key] = s
			reactions[key] = map[string]struct{}{}
			order = append(order, key)
		}
		s.Engagements++
		if e.ReactionType != "" {
			reactions[key][e.ReactionType] = struct{}{}
		}
		if at := e.OccurredAt(); at.After(s.LastEngagement) {
			s.LastEngagement = at
		}
	}

	all := make([]PersonStats, 0, len(order))
	for _, key := range order {
		s := byKey[key]
		for r := range reactions[key] {
			s.ReactionTypes = append(s.ReactionTypes, r)
		}
		sort.Strings(s.ReactionTypes)
		all = append(all, *s)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EngagementScore+float64(all[i].Influence) > all[j].EngagementScore+float64(all[j].Influence)
	})

	out := PeopleInsights{TotalPeople: len(all)}
	for _, s := range all {
		if s.Influence > 0 && len(out.KeyInfluencers) < topInfluencers {
			out.KeyInfluencers = append(out.KeyInfluencers, s)
		}
		if s.EngagementScore >= g.cfg.HighValueThreshold {
			out.HighEngagers = append(out.HighEngagers, s)
		}
	}
	out.TopPeople = all
	if len(out.TopPeople) > topPeople {
		out.TopPeople = out.TopPeople[:topPeople]
	}
	return out
}

func (g *Generator) campaignIntelligence(in Input, spend decimal.Decimal, t TargetingEffectiveness) CampaignIntelligence {
	out := CampaignIntelligence{
		CampaignCount:              len(in.Campaigns),
		TotalSpend:                 spend,
		ReachEstimate:              analytics.SumImpressions(in.Analytics),
		CostPerImpressionBenchmark: g.cfg.BenchmarkCostPerImpress,
		TargetingEffectiveness:     t.OverallScore,
	}
	if out.ReachEstimate > 0 {
		reach := decimal.NewFromInt(out.ReachEstimate)
		out.CostPerImpression = spend.Div(reach).Round(6)
		out.ImpressionToEngagementRate = float64(len(in.Engagements)) / float64(out.ReachEstimate)
	}
	if len(in.Campaigns) > 0 {
		if t.OverallScore > 0.6 {
			out.TargetingMessage = "Campaign targeting is effectively reaching intended audience segments"
		} else {
			out.TargetingMessage = "Campaign targeting may need refinement to better reach intended audience"
		}
	}
	return out
}

func (g *Generator) recommendations(in Input, r *Report) []Recommendation {
	recs := []Recommendation{}
	score := r.Targeting.OverallScore
	if len(in.Campaigns) > 0 && len(in.Engagements) > 0 {
		switch {
		case score < g.cfg.TargetHitRateThreshold:
			recs = append(recs, Recommendation{
				Priority:    "high",
				Category:    "targeting",
				Title:       "Improve Audience Targeting",
				Description: "Low target hit rate suggests audience targeting needs refinement",
				Action:      "Review and narrow target company/title lists for better precision",
			})
		case score > expansionScore:
			recs = append(recs, Recommendation{
				Priority:    "medium",
				Category:    "expansion",
				Title:       "Consider Audience Expansion",
				Description: "High target hit rate indicates successful targeting - consider expanding",
				Action:      "Test similar companies or adjacent job functions",
			})
		}
	}

	limit := decimal.NewFromFloat(g.cfg.BenchmarkCostPerEngage * g.cfg.BenchmarkQualityEngageMul)
	if r.Cost.CostPerQualityEngagement.GreaterThan(limit) {
		recs = append(recs, Recommendation{
			Priority:    "high",
			Category:    "cost_optimization",
			Title:       "Reduce Cost Per Quality Engagement",
			Description: "Higher than benchmark cost per quality engagement",
			Action:      "Optimize ad creative or refine targeting to improve efficiency",
		})
	}
	if n := len(r.Companies.PenetrationLeaders); n > 0 {
		recs = append(recs, Recommendation{
			Priority:    "medium",
			Category:    "account_expansion",
			Title:       "Expand Within High-Performing Companies",
			Description: fmt.Sprintf("%d companies show strong engagement", n),
			Action:      "Create account-specific campaigns for top performing companies",
		})
	}
	missing := 0
	for i := range in.Engagements {
		if in.Engagements[i].Person == nil {
			missing++
		}
	}
	if float64(missing) > float64(len(in.Engagements))*0.2 {
		recs = append(recs, Recommendation{
			Priority:    "medium",
			Category:    "data_quality",
			Title:       "Improve Data Collection",
			Description: "Significant missing person data affecting analysis accuracy",
			Action:      "Run profile enrichment to complete missing company/title information",
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return priorityRank(recs[i].Priority) < priorityRank(recs[j].Priority) })
	return recs
}

func (g *Generator) benchmarks(in Input, t TargetingEffectiveness) Benchmarks {
	var out Benchmarks
	if reach := analytics.SumImpressions(in.Analytics); reach > 0 {
		rate := float64(len(in.Engagements)) / float64(reach)
		out.EngagementRate = compareTo(rate, g.cfg.BenchmarkEngagementRate)
	}
	out.TargetingEffectiveness = *compareTo(t.OverallScore, g.cfg.BenchmarkTargetingRate)
	return out
}

func compareTo(actual, benchmark float64) *BenchmarkComparison {
	c := &BenchmarkComparison{Actual: actual, Benchmark: benchmark, Performance: "below"}
	if actual > benchmark {
		c.Performance = "above"
	}
	if benchmark > 0 {
		c.Ratio = actual / benchmark
	}
	return c
}

func (g *Generator) summary(engagements int, r *Report) ExecutiveSummary {
	targeting := r.Targeting.OverallScore
	quality := r.Quality.Overall

	status := StatusNeedsImprovement
	switch {
	case targeting > 0.6 && quality > 7:
		status = StatusExcellent
	case targeting > 0.4 || quality > 5:
		status = StatusGood
	}

	pct := int(math.Round(targeting * 100))
	s := ExecutiveSummary{
		Status: status,
		KeyMetrics: KeyMetrics{
			TotalEngagements:       engagements,
			TargetingEffectiveness: pct,
			QualityScore:           quality,
			TopCompanies:           min(3, len(r.Companies.TopPerformers)),
		},
		KeyInsights: []string{},
	}
	switch status {
	case StatusExcellent:
		s.Headline = fmt.Sprintf("Excellent performance: %d engagements with %d%% target hit rate", engagements, pct)
	case StatusGood:
		s.Headline = fmt.Sprintf("Good performance: %d engagements with room for optimization", engagements)
	default:
		s.Headline = fmt.Sprintf("%d engagements analyzed - improvements needed for better targeting", engagements)
	}

	for _, c := range r.Companies.TopPerformers {
		if c.Name == unknownCompany {
			continue
		}
		s.KeyInsights = append(s.KeyInsights, fmt.Sprintf("%s leads with %d engaged professionals", c.Name, c.UniquePeople))
		break
	}
	if targeting > 0.5 {
		s.KeyInsights = append(s.KeyInsights, "Strong targeting effectiveness - strategy is reaching intended audience")
	}
	if quality > 7 {
		s.KeyInsights = append(s.KeyInsights, "High-quality engagement data enables reliable analysis")
	}
	if len(r.Recommendations) > 0 {
		top := r.Recommendations[0]
		s.TopPriority = &top
	}
	return s
}

func (g *Generator) highValue(rows []analytics.Engagement) int {
	n := 0
	for i := range rows {
		if p := rows[i].Person; p != nil && p.EngagementScore >= g.cfg.HighValueThreshold {
			n++
		}
	}
	return n
}

// totalSpend prefers reported campaign spend over the spend stored on the post.
func totalSpend(in Input) decimal.Decimal {
	if spend := analytics.SumSpend(in.Analytics); spend.IsPositive() {
		return spend
	}
	if in.Post != nil {
		return in.Post.CampaignSpend
	}
	return decimal.Zero
}

// influence counts the seniority keywords in a title, matching whole words
// so that "director" does not count as "cto".
func influence(title string) int {
	words := strings.FieldsFunc(lower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	padded := " " + strings.Join(words, " ") + " "
	n := 0
	for _, kw := range influenceKeywords {
		if strings.Contains(padded, " "+kw+" ") {
			n++
		}
	}
	return n
}

func interpretTargeting(score float64) string {
	switch {
	case score > 0.7:
		return "Excellent targeting - strategy is highly effective"
	case score > 0.5:
		return "Good targeting with room for refinement"
	case score > 0.3:
		return "Moderate targeting effectiveness - consider optimization"
	default:
		return "Low targeting effectiveness - strategy needs significant improvement"
	}
}

func interpretQuality(score float64) string {
	switch {
	case score >= 8:
		return "Excellent data quality - reliable for decision making"
	case score >= 6:
		return "Good data quality - suitable for analysis"
	case score >= 4:
		return "Fair data quality - some limitations in analysis"
	default:
		return "Poor data quality - significant cleanup needed"
	}
}

// interpretCost grades cost per engagement as a ratio of the benchmark.
func interpretCost(ratio float64) string {
	switch {
	case ratio < 0.7:
		return "Excellent cost efficiency - significantly below industry average"
	case ratio < 1:
		return "Good cost efficiency - below industry average"
	case ratio < 1.5:
		return "Fair cost efficiency - near industry average"
	default:
		return "Poor cost efficiency - significantly above industry average"
	}
}

func priorityRank(p string) int {
	switch p {
	case "high":
		return 0
	case "medium":
		return 1
	default:
		return 2
	}
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func overlapsAny(value string, targets []string) bool {
	for _, t := range targets {
		if strings.Contains(value, t) || strings.Contains(t, value) {
			return true
		}
	}
	return false
}
