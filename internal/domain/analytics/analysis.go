package analytics

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a step of the post analysis pipeline.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageInitializing       Stage = "initializing"
	StageMetadataExtracted  Stage = "metadata_extracted"
	StageFetchingData       Stage = "fetching_data"
	StageCorrelatingData    Stage = "correlating_data"
	StageGeneratingInsights Stage = "generating_insights"
	StageFinalizing         Stage = "finalizing"
	StageComplete           Stage = "complete"
	StageFailed             Stage = "failed"
)

var stageOrder = map[Stage]int{
	StageIdle:               0,
	StageInitializing:       1,
	StageMetadataExtracted:  2,
	StageFetchingData:       3,
	StageCorrelatingData:    4,
	StageGeneratingInsights: 5,
	StageFinalizing:         6,
	StageComplete:           7,
}

var stageProgress = map[Stage]int{
	StageIdle:               0,
	StageInitializing:       5,
	StageMetadataExtracted:  15,
	StageFetchingData:       25,
	StageCorrelatingData:    60,
	StageGeneratingInsights: 80,
	StageFinalizing:         95,
	StageComplete:           100,
}

// Progress returns the completion percentage reported when entering the stage.
func (s Stage) Progress() int {
	return stageProgress[s]
}

// IsTerminal reports whether no further transition is expected.
func (s Stage) IsTerminal() bool {
	return s == StageComplete || s == StageFailed
}

// CanTransition reports whether the pipeline may move from s to next. Stages
// only move forward; any non-terminal stage may fail; a terminal stage may
// only restart from initializing.
func (s Stage) CanTransition(next Stage) bool {
	if next == StageFailed {
		return !s.IsTerminal()
	}
	if next == StageInitializing {
		return s == StageIdle || s.IsTerminal()
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	return ok && to > from
}

// RunStatus is the lifecycle state of a scraper run.
type RunStatus string

const (
	RunReady     RunStatus = "READY"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunAborted   RunStatus = "ABORTED"
	RunTimedOut  RunStatus = "TIMED-OUT"
)

// IsFinished reports whether the run reached a final state.
func (s RunStatus) IsFinished() bool {
	switch s {
	case RunSucceeded, RunFailed, RunAborted, RunTimedOut:
		return true
	}
	return false
}

// ScraperRun is one execution of the reactions scraper for a post.
type ScraperRun struct {
	ID         string
	PostURL    string
	Status     RunStatus
	DatasetID  string
	ItemCount  int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// IsReusable reports whether a succeeded run is younger than maxAge.
func (r *ScraperRun) IsReusable(now time.Time, maxAge time.Duration) bool {
	return r != nil && r.Status == RunSucceeded && r.DatasetID != "" && now.Sub(r.StartedAt) < maxAge
}

// AnalysisRecord is a persisted analysis result used as a cache.
type AnalysisRecord struct {
	ID        uuid.UUID
	PostURL   string
	PostID    string
	Status    string
	Payload   []byte
	CreatedAt time.Time
}

// IsFresh reports whether the record is younger than ttl.
func (a *AnalysisRecord) IsFresh(now time.Time, ttl time.Duration) bool {
	return a != nil && now.Sub(a.CreatedAt) < ttl
}
