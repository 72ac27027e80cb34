package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRuns struct {
	mu   sync.Mutex
	runs map[string]analytics.ScraperRun
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[string]analytics.ScraperRun)}
}

func (m *memoryRuns) LatestForURL(_ context.Context, postURL string) (*analytics.ScraperRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[postURL]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *memoryRuns) Save(_ context.Context, run *analytics.ScraperRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.PostURL] = *run
	return nil
}

// fakeApify serves one actor whose runs succeed after a number of polls.
type fakeApify struct {
	t             *testing.T
	pollsToFinish int32
	finalStatus   string
	items         string
	triggers      atomic.Int32
	polls         atomic.Int32
	fetches       atomic.Int32
	lastInput     map[string]any
}

func (f *fakeApify) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "Bearer apify-token", r.Header.Get("Authorization"))
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/acts/"):
		f.triggers.Add(1)
		assert.Contains(f.t, r.URL.Path, "~")
		var input map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&input))
		f.lastInput = input
		fmt.Fprintf(w, `{"data":{"id":"run-%d","status":"READY","defaultDatasetId":"ds-1","startedAt":"2025-01-10T10:00:00Z"}}`, f.triggers.Load())
	case strings.HasPrefix(r.URL.Path, "/actor-runs/"):
		n := f.polls.Add(1)
		status := "RUNNING"
		if n >= f.pollsToFinish {
			status = f.finalStatus
		}
		id := strings.TrimPrefix(r.URL.Path, "/actor-runs/")
		fmt.Fprintf(w, `{"data":{"id":%q,"status":%q,"defaultDatasetId":"ds-1","startedAt":"2025-01-10T10:00:00Z"}}`, id, status)
	case strings.HasPrefix(r.URL.Path, "/datasets/ds-1/items"):
		f.fetches.Add(1)
		assert.Equal(f.t, "json", r.URL.Query().Get("format"))
		fmt.Fprint(w, f.items)
	default:
		http.NotFound(w, r)
	}
}

const reactionItems = `[
	{"linkedinUrl":"https://www.linkedin.com/in/ada","name":"Ada Lovelace","headline":"CTO at Engines","reactionType":"LIKE"},
	{"profileUrl":"https://www.linkedin.com/in/alan","fullName":"Alan Turing","company":"Bletchley"}
]`

func newFake(t *testing.T, pollsToFinish int32, final string) (*fakeApify, config.ApifyConfig) {
	f := &fakeApify{t: t, pollsToFinish: pollsToFinish, finalStatus: final, items: reactionItems}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, config.ApifyConfig{
		BaseURL:            srv.URL,
		Token:              "apify-token",
		EnrichmentActorID:  "dev/profile-scraper",
		PollInterval:       5 * time.Millisecond,
		WaitTimeout:        time.Second,
		EnrichmentInterval: 5 * time.Millisecond,
		EnrichmentTimeout:  time.Second,
	}
}

func TestClient_TriggerPollFetch(t *testing.T) {
	f, cfg := newFake(t, 1, "SUCCEEDED")
	c := NewClient(cfg)
	ctx := context.Background()

	run, err := c.Trigger(ctx, "https://www.linkedin.com/feed/update/urn:li:activity:1", 0)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, analytics.RunReady, run.Status)
	assert.Equal(t, float64(DefaultMaxItems), f.lastInput["maxItems"])
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:activity:1", f.lastInput["postUrl"])

	polled, err := c.Poll(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, analytics.RunSucceeded, polled.Status)
	assert.Equal(t, "ds-1", polled.DatasetID)

	items, err := c.FetchDataset(ctx, polled.DatasetID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://www.linkedin.com/in/ada", items[0].LinkedInURL)
	assert.Equal(t, "LIKE", items[0].ReactionType)
	assert.Equal(t, "https://www.linkedin.com/in/alan", items[1].LinkedInURL)
	assert.Equal(t, "Alan Turing", items[1].Name)
}

func TestClient_WaitForRun(t *testing.T) {
	t.Run("succeeds after polling", func(t *testing.T) {
		f, cfg := newFake(t, 3, "SUCCEEDED")
		run, err := NewClient(cfg).WaitForRun(context.Background(), "run-9", 0, 0)
		require.NoError(t, err)
		assert.Equal(t, analytics.RunSucceeded, run.Status)
		assert.Equal(t, int32(3), f.polls.Load())
	})

	t.Run("failed run", func(t *testing.T) {
		_, cfg := newFake(t, 1, "FAILED")
		_, err := NewClient(cfg).WaitForRun(context.Background(), "run-9", 0, 0)
		assert.ErrorIs(t, err, ErrRunFailed)
	})

	t.Run("aborted run", func(t *testing.T) {
		_, cfg := newFake(t, 1, "ABORTED")
		_, err := NewClient(cfg).WaitForRun(context.Background(), "run-9", 0, 0)
		assert.ErrorIs(t, err, ErrRunFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		_, cfg := newFake(t, 1_000_000, "SUCCEEDED")
		_, err := NewClient(cfg).WaitForRun(context.Background(), "run-9", 5*time.Millisecond, 30*time.Millisecond)
		assert.ErrorIs(t, err, ErrRunTimeout)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		_, cfg := newFake(t, 1_000_000, "SUCCEEDED")
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := NewClient(cfg).WaitForRun(ctx, "run-9", 5*time.Millisecond, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrRunTimeout)
	})
}

func TestClient_CollectReactions(t *testing.T) {
	const postURL = "https://www.linkedin.com/posts/acme_launch-activity-7000"
	f, cfg := newFake(t, 1, "SUCCEEDED")
	runs := newMemoryRuns()
	archive := storage.NewMemoryArchive("raw")
	c := NewClient(cfg, WithRunStore(runs), WithArchive(archive))
	ctx := context.Background()

	first, err := c.CollectReactions(ctx, postURL)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, first.Items, 2)
	assert.Equal(t, 2, first.Run.ItemCount)
	assert.Equal(t, int32(1), f.triggers.Load())
	assert.Equal(t, 1, archive.Len())

	saved, err := runs.LatestForURL(ctx, postURL)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, analytics.RunSucceeded, saved.Status)

	// Within the reuse window no new run is started.
	c.now = func() time.Time { return saved.StartedAt.Add(time.Hour) }
	second, err := c.CollectReactions(ctx, postURL)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Len(t, second.Items, 2)
	assert.Equal(t, int32(1), f.triggers.Load())

	// After the window a fresh run is started.
	c.now = func() time.Time { return saved.StartedAt.Add(25 * time.Hour) }
	third, err := c.CollectReactions(ctx, postURL)
	require.NoError(t, err)
	assert.False(t, third.FromCache)
	assert.Equal(t, int32(2), f.triggers.Load())
}

func TestClient_CollectReactionsFailedRun(t *testing.T) {
	const postURL = "https://www.linkedin.com/feed/update/urn:li:activity:42"
	_, cfg := newFake(t, 1, "FAILED")
	runs := newMemoryRuns()
	c := NewClient(cfg, WithRunStore(runs))

	_, err := c.CollectReactions(context.Background(), postURL)
	assert.ErrorIs(t, err, ErrRunFailed)

	saved, _ := runs.LatestForURL(context.Background(), postURL)
	require.NotNil(t, saved)
	assert.Equal(t, analytics.RunFailed, saved.Status)
}

func TestClient_EnrichProfile(t *testing.T) {
	f, cfg := newFake(t, 2, "SUCCEEDED")
	f.items = `[{"headline":"VP Engineering","jobTitle":"VP Engineering","companyName":"Acme","addressWithCountry":"Berlin, Germany","profilePic":"https://img/1.jpg"}]`

	data, err := NewClient(cfg).EnrichProfile(context.Background(), "https://www.linkedin.com/in/grace")
	require.NoError(t, err)
	assert.Equal(t, &analytics.ProfileData{
		Headline:       "VP Engineering",
		Title:          "VP Engineering",
		Company:        "Acme",
		Location:       "Berlin, Germany",
		ProfilePicture: "https://img/1.jpg",
	}, data)
	assert.Equal(t, []any{"https://www.linkedin.com/in/grace"}, f.lastInput["linkedinUrls"])
}

func TestClient_EnrichProfileEmptyDataset(t *testing.T) {
	f, cfg := newFake(t, 1, "SUCCEEDED")
	f.items = `[]`

	_, err := NewClient(cfg).EnrichProfile(context.Background(), "https://www.linkedin.com/in/nobody")
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestClient_EnrichmentActorRequired(t *testing.T) {
	_, cfg := newFake(t, 1, "SUCCEEDED")
	cfg.EnrichmentActorID = ""

	_, err := NewClient(cfg).TriggerProfileEnrichment(context.Background(), []string{"https://www.linkedin.com/in/x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient(config.ApifyConfig{BaseURL: srv.URL, MaxRetries: 2})
	items, err := c.FetchDataset(context.Background(), "ds")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_TriggerIsNotRetried(t *testing.T) {
	var starts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			starts.Add(1)
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.ApifyConfig{BaseURL: srv.URL, MaxRetries: 3})
	_, err := c.Trigger(context.Background(), "https://www.linkedin.com/feed/update/urn:li:activity:1/", 10)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, int32(1), starts.Load())
}

func TestClient_ZeroRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(config.ApifyConfig{BaseURL: srv.URL}).FetchDataset(context.Background(), "ds")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(config.ApifyConfig{BaseURL: srv.URL, MaxRetries: 3}).Poll(context.Background(), "run")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}
