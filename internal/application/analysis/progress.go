package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// statusTTL bounds how long a finished analysis can still be polled.
const statusTTL = time.Hour

// ProcessingStatus is the progress record of one analysis run.
type ProcessingStatus struct {
	AnalysisID string          `json:"analysis_id"`
	PostURL    string          `json:"post_url"`
	Stage      analytics.Stage `json:"stage"`
	Progress   int             `json:"progress"`
	Warnings   []string        `json:"warnings"`
	Errors     []string        `json:"errors"`
	StartedAt  time.Time       `json:"started_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Tracker publishes progress records to a cache so that any replica can
// answer status polls.
type Tracker struct {
	cache  cache.Cache
	logger *zap.Logger
}

// NewTracker creates a Tracker on top of c.
func NewTracker(c cache.Cache, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{cache: cache.Namespaced(c, "analysis:status"), logger: logger}
}

// Get returns the latest progress record of an analysis.
func (t *Tracker) Get(ctx context.Context, analysisID string) (*ProcessingStatus, error) {
	var st ProcessingStatus
	ok, err := cache.GetJSON(ctx, t.cache, analysisID, &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrNotFound.WithMessage("analysis " + analysisID + " not found")
	}
	return &st, nil
}

// Register stores an idle record for an analysis that has not started, so
// status polls succeed before the run begins.
func (t *Tracker) Register(ctx context.Context, analysisID, postURL string, now time.Time) error {
	return cache.SetJSON(ctx, t.cache, analysisID, ProcessingStatus{
		AnalysisID: analysisID,
		PostURL:    postURL,
		Stage:      analytics.StageIdle,
		Warnings:   []string{},
		Errors:     []string{},
		StartedAt:  now,
		UpdatedAt:  now,
	}, statusTTL)
}

func (t *Tracker) save(ctx context.Context, st ProcessingStatus) {
	if err := cache.SetJSON(ctx, t.cache, st.AnalysisID, st, statusTTL); err != nil {
		t.logger.Warn("Failed to store analysis status",
			zap.String("analysis_id", st.AnalysisID), zap.Error(err))
	}
}

// run is the mutable progress of one analysis. Methods are safe for
// concurrent use by the fetch goroutines.
type run struct {
	tracker *Tracker
	now     func() time.Time

	mu         sync.Mutex
	status     ProcessingStatus
	stageStart time.Time
}

func (t *Tracker) begin(ctx context.Context, analysisID, postURL string, now func() time.Time) *run {
	start := now()
	r := &run{
		tracker: t,
		now:     now,
		status: ProcessingStatus{
			AnalysisID: analysisID,
			PostURL:    postURL,
			Stage:      analytics.StageIdle,
			Warnings:   []string{},
			Errors:     []string{},
			StartedAt:  start,
			UpdatedAt:  start,
		},
		stageStart: start,
	}
	r.advance(ctx, analytics.StageInitializing)
	return r
}

// advance moves to next and returns the stage left with its duration. An
// illegal transition is ignored.
func (r *run) advance(ctx context.Context, next analytics.Stage) (analytics.Stage, time.Duration, bool) {
	r.mu.Lock()
	prev := r.status.Stage
	if !prev.CanTransition(next) {
		r.mu.Unlock()
		r.tracker.logger.Warn("Ignoring illegal stage transition",
			zap.String("from", string(prev)), zap.String("to", string(next)))
		return prev, 0, false
	}
	now := r.now()
	elapsed := now.Sub(r.stageStart)
	r.stageStart = now
	r.status.Stage = next
	if next != analytics.StageFailed {
		r.status.Progress = next.Progress()
	}
	r.status.UpdatedAt = now
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.tracker.save(ctx, snapshot)
	return prev, elapsed, true
}

func (r *run) warn(msg string) {
	r.mu.Lock()
	r.status.Warnings = append(r.status.Warnings, msg)
	r.mu.Unlock()
}

func (r *run) fail(msg string) {
	r.mu.Lock()
	r.status.Errors = append(r.status.Errors, msg)
	r.mu.Unlock()
}

func (r *run) snapshot() ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *run) snapshotLocked() ProcessingStatus {
	st := r.status
	st.Warnings = append([]string{}, r.status.Warnings...)
	st.Errors = append([]string{}, r.status.Errors...)
	return st
}

func (r *run) warnings() []string {
	return r.snapshot().Warnings
}
