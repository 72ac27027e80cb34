package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/application/analysis"
	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/domain/shared"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPostURL = "https://www.linkedin.com/feed/update/urn:li:activity:7123456789012345678/"

// trackedAnalyzer keeps progress in a real tracker and holds each run until
// release is closed.
type trackedAnalyzer struct {
	tracker *analysis.Tracker
	release chan struct{}
}

func (a *trackedAnalyzer) AnalyzePost(context.Context, string, analysis.Options) (*analysis.Response, error) {
	<-a.release
	return &analysis.Response{Success: true, Status: analysis.StatusSuccess}, nil
}

func (a *trackedAnalyzer) Status(ctx context.Context, analysisID string) (*analysis.ProcessingStatus, error) {
	return a.tracker.Get(ctx, analysisID)
}

func (a *trackedAnalyzer) Register(ctx context.Context, analysisID, rawURL string) error {
	return a.tracker.Register(ctx, analysisID, rawURL, time.Now())
}

func TestAnalysisHandler_Analyze(t *testing.T) {
	t.Run("runs in background and returns 202", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("Register", mock.Anything, mock.Anything, testPostURL).Return(nil)
		done := make(chan analysis.Options, 1)
		analyzer.On("AnalyzePost", mock.Anything, testPostURL, mock.Anything).
			Run(func(args mock.Arguments) { done <- args.Get(2).(analysis.Options) }).
			Return(&analysis.Response{Success: true, Status: analysis.StatusSuccess}, nil)
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodPost, "/analyses", "/analyses",
			map[string]any{"post_url": testPostURL, "force_refresh": true}, h.Analyze)

		assert.Equal(t, http.StatusAccepted, w.Code)
		resp := decode(t, w)
		data := resp.Data.(map[string]any)
		id := data["analysis_id"].(string)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, "/api/v1/analyses/"+id+"/status", data["status_url"])

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, h.Wait(ctx))
		opts := <-done
		assert.Equal(t, id, opts.AnalysisID)
		assert.True(t, opts.ForceRefresh)
	})

	t.Run("status is pollable as soon as the run is accepted", func(t *testing.T) {
		store := cache.NewInMemoryCache(0)
		defer func() { _ = store.Close() }()
		tracker := analysis.NewTracker(store, nil)
		release := make(chan struct{})
		analyzer := &trackedAnalyzer{tracker: tracker, release: release}
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodPost, "/analyses", "/analyses",
			map[string]any{"post_url": testPostURL}, h.Analyze)
		require.Equal(t, http.StatusAccepted, w.Code)
		id := decode(t, w).Data.(map[string]any)["analysis_id"].(string)

		w = serve(t, http.MethodGet, "/analyses/:id/status", "/analyses/"+id+"/status", nil, h.Status)
		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, string(analytics.StageIdle), data["stage"])
		assert.Equal(t, testPostURL, data["post_url"])

		close(release)
		require.NoError(t, h.Wait(context.Background()))
	})

	t.Run("failed registration does not start the run", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("Register", mock.Anything, mock.Anything, testPostURL).Return(errors.New("cache down"))
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodPost, "/analyses", "/analyses",
			map[string]any{"post_url": testPostURL}, h.Analyze)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		require.NoError(t, h.Wait(context.Background()))
		analyzer.AssertNotCalled(t, "AnalyzePost", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wait returns the analysis", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("AnalyzePost", mock.Anything, testPostURL, mock.Anything).
			Return(&analysis.Response{Success: false, Status: analysis.StatusFallbackNeeded}, nil)
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodPost, "/analyses", "/analyses",
			map[string]any{"post_url": testPostURL, "wait": true}, h.Analyze)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, analysis.StatusFallbackNeeded, data["status"])
		analyzer.AssertExpectations(t)
	})

	t.Run("wait surfaces malformed input", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("AnalyzePost", mock.Anything, testPostURL, mock.Anything).
			Return(nil, analytics.ErrInputMalformed)
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodPost, "/analyses", "/analyses",
			map[string]any{"post_url": testPostURL, "wait": true}, h.Analyze)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	tests := []struct {
		name string
		body any
	}{
		{name: "missing url", body: map[string]any{}},
		{name: "not a url", body: map[string]any{"post_url": "linkedin post"}},
		{name: "foreign host", body: map[string]any{"post_url": "https://example.com/feed/update/1"}},
		{name: "malformed json", body: `{"post_url":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := new(MockPostAnalyzer)
			h := NewAnalysisHandler(analyzer, nil)

			w := serve(t, http.MethodPost, "/analyses", "/analyses", tt.body, h.Analyze)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			analyzer.AssertNotCalled(t, "AnalyzePost", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestAnalysisHandler_Status(t *testing.T) {
	id := uuid.NewString()

	t.Run("found", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("Status", mock.Anything, id).Return(&analysis.ProcessingStatus{
			AnalysisID: id,
			PostURL:    testPostURL,
			Stage:      analytics.StageCorrelatingData,
			Progress:   60,
		}, nil)
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodGet, "/analyses/:id/status", "/analyses/"+id+"/status", nil, h.Status)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w).Data.(map[string]any)
		assert.Equal(t, id, data["analysis_id"])
		assert.EqualValues(t, 60, data["progress"])
	})

	t.Run("unknown id", func(t *testing.T) {
		analyzer := new(MockPostAnalyzer)
		analyzer.On("Status", mock.Anything, id).Return(nil, shared.ErrNotFound)
		h := NewAnalysisHandler(analyzer, nil)

		w := serve(t, http.MethodGet, "/analyses/:id/status", "/analyses/"+id+"/status", nil, h.Status)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		h := NewAnalysisHandler(new(MockPostAnalyzer), nil)

		w := serve(t, http.MethodGet, "/analyses/:id/status", "/analyses/nope/status", nil, h.Status)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), "Invalid analysis id"))
	})
}

func TestAnalysisHandler_WaitTimesOut(t *testing.T) {
	analyzer := new(MockPostAnalyzer)
	analyzer.On("Register", mock.Anything, mock.Anything, testPostURL).Return(nil)
	release := make(chan struct{})
	analyzer.On("AnalyzePost", mock.Anything, testPostURL, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(&analysis.Response{Success: true}, nil)
	h := NewAnalysisHandler(analyzer, nil)

	w := serve(t, http.MethodPost, "/analyses", "/analyses",
		map[string]any{"post_url": testPostURL}, h.Analyze)
	require.Equal(t, http.StatusAccepted, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, h.Wait(context.Background()))
}
