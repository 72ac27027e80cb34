package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// PipelineMetrics records analysis, correlation, reconciliation and
// enrichment outcomes. A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	analysesTotal        *Counter
	analysisDuration     *Histogram
	stageDuration        *Histogram
	sourceFailures       *Counter
	matchesTotal         *Counter
	matchScore           *Histogram
	candidatesEvaluated  *Histogram
	reconciliationIssues *Counter
	qualityScore         *Histogram
	cleanupRemoved       *Counter
	enrichmentQueued     *Counter
	enrichmentProcessed  *Counter
	enrichmentBacklog    *Gauge
}

// NewPipelineMetrics creates every pipeline instrument on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &PipelineMetrics{}
	var err error
	counters := []struct {
		dst               **Counter
		name, desc, units string
	}{
		{&m.analysesTotal, "campaignlens_analyses_total", "Post analyses by final status", "{analyses}"},
		{&m.sourceFailures, "campaignlens_source_failures_total", "Upstream data sources that failed during an analysis", "{failures}"},
		{&m.matchesTotal, "campaignlens_correlation_matches_total", "Correlation results by confidence", "{matches}"},
		{&m.reconciliationIssues, "campaignlens_reconciliation_issues_total", "Data quality issues found", "{issues}"},
		{&m.cleanupRemoved, "campaignlens_cleanup_removed_total", "Duplicate engagement records removed", "{records}"},
		{&m.enrichmentQueued, "campaignlens_enrichment_queued_total", "Persons queued for enrichment", "{persons}"},
		{&m.enrichmentProcessed, "campaignlens_enrichment_processed_total", "Persons processed by enrichment, by result", "{persons}"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, c.units); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  **Histogram
		opts HistogramOpts
	}{
		{&m.analysisDuration, HistogramOpts{Name: "campaignlens_analysis_duration_seconds", Description: "End-to-end analysis duration", Unit: "s", Boundaries: StageDurationBuckets}},
		{&m.stageDuration, HistogramOpts{Name: "campaignlens_stage_duration_seconds", Description: "Analysis stage duration", Unit: "s", Boundaries: StageDurationBuckets}},
		{&m.matchScore, HistogramOpts{Name: "campaignlens_correlation_score", Description: "Best campaign match score", Unit: "1", Boundaries: ScoreBuckets}},
		{&m.candidatesEvaluated, HistogramOpts{Name: "campaignlens_correlation_candidates", Description: "Campaigns evaluated per correlation", Unit: "{campaigns}", Boundaries: []float64{1, 5, 10, 25, 50, 100, 250}}},
		{&m.qualityScore, HistogramOpts{Name: "campaignlens_data_quality_score", Description: "Post data quality score (0-100)", Unit: "1", Boundaries: []float64{50, 70, 85, 95, 100}}},
	}
	for _, h := range histograms {
		if *h.dst, err = NewHistogram(meter, h.opts); err != nil {
			return nil, err
		}
	}

	if m.enrichmentBacklog, err = NewGauge(meter, "campaignlens_enrichment_backlog", "Persons waiting for enrichment", "{persons}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAnalysis records a finished analysis.
func (m *PipelineMetrics) RecordAnalysis(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysesTotal.Inc(ctx, AttrStatus.String(status))
	m.analysisDuration.RecordDuration(ctx, d, AttrStatus.String(status))
}

// RecordStage records how long a stage ran.
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.RecordDuration(ctx, d, AttrStage.String(stage))
}

// RecordSourceFailure counts a failed upstream fetch.
func (m *PipelineMetrics) RecordSourceFailure(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.sourceFailures.Inc(ctx, AttrSource.String(source))
}

// RecordMatch records a correlation outcome.
func (m *PipelineMetrics) RecordMatch(ctx context.Context, confidence, strategy string, score float64, candidates int) {
	if m == nil {
		return
	}
	m.matchesTotal.Inc(ctx, AttrConfidence.String(confidence), AttrStrategy.String(strategy))
	m.matchScore.Record(ctx, score, AttrConfidence.String(confidence))
	m.candidatesEvaluated.Record(ctx, float64(candidates))
}

// RecordReconciliation records one post's validation result.
func (m *PipelineMetrics) RecordReconciliation(ctx context.Context, qualityScore int, orphans, duplicates, lowQuality int) {
	if m == nil {
		return
	}
	m.qualityScore.Record(ctx, float64(qualityScore))
	for issue, n := range map[string]int{"orphaned_engagements": orphans, "duplicates": duplicates, "low_quality_persons": lowQuality} {
		if n > 0 {
			m.reconciliationIssues.Add(ctx, int64(n), AttrIssueType.String(issue))
		}
	}
}

// RecordCleanup counts removed duplicate records.
func (m *PipelineMetrics) RecordCleanup(ctx context.Context, removed int64) {
	if m == nil {
		return
	}
	if removed > 0 {
		m.cleanupRemoved.Add(ctx, removed)
	}
}

// RecordEnrichmentQueued counts persons newly queued for enrichment.
func (m *PipelineMetrics) RecordEnrichmentQueued(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	if n > 0 {
		m.enrichmentQueued.Add(ctx, n)
	}
}

// RecordEnrichmentProcessed counts enrichment results ("completed" or "failed").
func (m *PipelineMetrics) RecordEnrichmentProcessed(ctx context.Context, result string, n int64) {
	if m == nil {
		return
	}
	if n > 0 {
		m.enrichmentProcessed.Add(ctx, n, AttrResult.String(result))
	}
}

// RecordEnrichmentBacklog records the current queue size.
func (m *PipelineMetrics) RecordEnrichmentBacklog(ctx context.Context, pending int64) {
	if m == nil {
		return
	}
	m.enrichmentBacklog.Record(ctx, pending)
}
