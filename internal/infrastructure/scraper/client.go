// Package scraper drives Apify actors: the post reactions scraper used by
// analyses and the profile scraper used by enrichment.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/infrastructure/storage"
	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL           = "https://api.apify.com/v2"
	DefaultReactionsActor    = "curious_coder/linkedin-post-reactions-scraper"
	DefaultPollInterval      = 5 * time.Second
	DefaultWaitTimeout       = 2 * time.Minute
	DefaultEnrichmentPoll    = 10 * time.Second
	DefaultEnrichmentTimeout = 5 * time.Minute
	DefaultRunReuseWindow    = 24 * time.Hour
	DefaultMaxItems          = 500
)

var (
	// ErrRunTimeout is returned when a run does not finish in time.
	ErrRunTimeout = errors.New("scraper: run did not finish in time")
	// ErrRunFailed is returned when a run ends in any state but SUCCEEDED.
	ErrRunFailed = errors.New("scraper: run failed")
	// ErrEmptyDataset is returned when a profile run produced no items.
	ErrEmptyDataset = errors.New("scraper: dataset is empty")
	// ErrNotConfigured is returned when the needed actor is not set.
	ErrNotConfigured = errors.New("scraper: actor not configured")
)

// StatusError is a non-2xx answer from the Apify API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apify: status %d: %s", e.StatusCode, e.Body)
}

// Client is an Apify API client.
type Client struct {
	baseURL           string
	token             string
	reactionsActor    string
	enrichmentActor   string
	pollInterval      time.Duration
	waitTimeout       time.Duration
	enrichmentPoll    time.Duration
	enrichmentTimeout time.Duration
	reuseWindow       time.Duration
	maxItems          int

	httpClient *http.Client
	executor   failsafe.Executor[[]byte]
	runs       analytics.ScraperRunRepository
	archive    storage.DatasetArchive
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithRunStore remembers runs per post URL so recent runs can be reused.
func WithRunStore(r analytics.ScraperRunRepository) Option {
	return func(c *Client) { c.runs = r }
}

// WithArchive copies every fetched reactions dataset to a.
func WithArchive(a storage.DatasetArchive) Option {
	return func(c *Client) { c.archive = a }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a client from configuration.
func NewClient(cfg config.ApifyConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		token:             cfg.Token,
		reactionsActor:    orDefault(cfg.ReactionsActorID, DefaultReactionsActor),
		enrichmentActor:   cfg.EnrichmentActorID,
		pollInterval:      durationOr(cfg.PollInterval, DefaultPollInterval),
		waitTimeout:       durationOr(cfg.WaitTimeout, DefaultWaitTimeout),
		enrichmentPoll:    durationOr(cfg.EnrichmentInterval, DefaultEnrichmentPoll),
		enrichmentTimeout: durationOr(cfg.EnrichmentTimeout, DefaultEnrichmentTimeout),
		reuseWindow:       durationOr(cfg.RunReuseWindow, DefaultRunReuseWindow),
		maxItems:          cfg.MaxItems,
		httpClient:        &http.Client{Timeout: durationOr(cfg.RequestTimeout, 30*time.Second)},
		logger:            zap.NewNop(),
		now:               time.Now,
	}
	if c.maxItems <= 0 {
		c.maxItems = DefaultMaxItems
	}
	for _, opt := range opts {
		opt(c)
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	c.executor = failsafe.With(retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return isRetryable(err) }).
		WithBackoff(200*time.Millisecond, 5*time.Second).
		WithJitterFactor(0.1).
		WithMaxRetries(retries).
		ReturnLastFailure().
		Build())
	return c
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// actorPath turns "user/actor" into the "user~actor" form used in URLs.
func actorPath(actorID string) string {
	return url.PathEscape(strings.ReplaceAll(actorID, "/", "~"))
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", op, err)
		}
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	ctx, span := telemetry.StartClientSpan(ctx, "apify", op)
	defer span.End()

	send := func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if len(data) > 512 {
				data = data[:512]
			}
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	}

	// Only GETs are retried: a repeated POST starts another paid run.
	var (
		data []byte
		err  error
	)
	if method == http.MethodGet {
		data, err = c.executor.WithContext(ctx).Get(send)
	} else {
		data, err = send()
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("apify %s: %w", op, err)
	}
	return data, nil
}

type apiRun struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	StatusMessage    string    `json:"statusMessage"`
	DefaultDatasetID string    `json:"defaultDatasetId"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

func decodeRun(data []byte) (*apiRun, error) {
	var env struct {
		Data *apiRun `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	if env.Data != nil {
		return env.Data, nil
	}
	var run apiRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}

func (r *apiRun) toDomain(postURL string) *analytics.ScraperRun {
	run := &analytics.ScraperRun{
		ID:        r.ID,
		PostURL:   postURL,
		Status:    analytics.RunStatus(r.Status),
		DatasetID: r.DefaultDatasetID,
		StartedAt: r.StartedAt,
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}

func (c *Client) startRun(ctx context.Context, op, actorID string, input any) (*apiRun, error) {
	if actorID == "" {
		return nil, ErrNotConfigured
	}
	data, err := c.call(ctx, op, http.MethodPost, "/acts/"+actorPath(actorID)+"/runs", nil, input)
	if err != nil {
		return nil, err
	}
	return decodeRun(data)
}

// Trigger starts a reactions run for postURL. maxItems <= 0 uses the
// configured default.
func (c *Client) Trigger(ctx context.Context, postURL string, maxItems int) (*analytics.ScraperRun, error) {
	if maxItems <= 0 {
		maxItems = c.maxItems
	}
	r, err := c.startRun(ctx, "trigger_reactions", c.reactionsActor, map[string]any{
		"postUrl":  postURL,
		"maxItems": maxItems,
	})
	if err != nil {
		return nil, err
	}
	run := r.toDomain(postURL)
	if run.StartedAt.IsZero() {
		run.StartedAt = c.now()
	}
	c.remember(ctx, run)
	c.logger.Info("Scraper run started", zap.String("run_id", run.ID), zap.String("post_url", postURL))
	return run, nil
}

// Poll reads the current state of a run.
func (c *Client) Poll(ctx context.Context, runID string) (*analytics.ScraperRun, error) {
	data, err := c.call(ctx, "poll_run", http.MethodGet, "/actor-runs/"+url.PathEscape(runID), nil, nil)
	if err != nil {
		return nil, err
	}
	r, err := decodeRun(data)
	if err != nil {
		return nil, err
	}
	return r.toDomain(""), nil
}

// WaitForRun polls every interval until the run finishes or timeout passes.
// Runs ending in any state other than SUCCEEDED yield ErrRunFailed.
func (c *Client) WaitForRun(ctx context.Context, runID string, interval, timeout time.Duration) (*analytics.ScraperRun, error) {
	interval = durationOr(interval, c.pollInterval)
	timeout = durationOr(timeout, c.waitTimeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := c.Poll(ctx, runID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, waitError(ctx, runID, timeout)
		case err != nil:
			c.logger.Warn("Scraper poll failed", zap.String("run_id", runID), zap.Error(err))
		case run.Status == analytics.RunSucceeded:
			return run, nil
		case run.Status.IsFinished():
			return run, fmt.Errorf("%w: run %s ended %s", ErrRunFailed, runID, run.Status)
		}

		select {
		case <-ctx.Done():
			return nil, waitError(ctx, runID, timeout)
		case <-ticker.C:
		}
	}
}

func waitError(ctx context.Context, runID string, timeout time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: run %s after %s", ErrRunTimeout, runID, timeout)
	}
	return ctx.Err()
}

type apiReaction struct {
	LinkedInURL    string `json:"linkedinUrl"`
	ProfileURL     string `json:"profileUrl"`
	Name           string `json:"name"`
	FullName       string `json:"fullName"`
	Title          string `json:"title"`
	Company        string `json:"company"`
	Headline       string `json:"headline"`
	ProfilePicture string `json:"profilePicture"`
	Location       string `json:"location"`
	ReactionType   string `json:"reactionType"`
}

func (a apiReaction) toDomain() analytics.ScrapedReaction {
	return analytics.ScrapedReaction{
		LinkedInURL:    orDefault(a.LinkedInURL, a.ProfileURL),
		Name:           orDefault(a.Name, a.FullName),
		Title:          a.Title,
		Company:        a.Company,
		Headline:       a.Headline,
		ProfilePicture: a.ProfilePicture,
		Location:       a.Location,
		ReactionType:   a.ReactionType,
	}
}

func (c *Client) datasetItems(ctx context.Context, op, datasetID string) ([]byte, error) {
	q := url.Values{"format": {"json"}, "clean": {"true"}}
	return c.call(ctx, op, http.MethodGet, "/datasets/"+url.PathEscape(datasetID)+"/items", q, nil)
}

// FetchDataset reads every item of a reactions dataset.
func (c *Client) FetchDataset(ctx context.Context, datasetID string) ([]analytics.ScrapedReaction, error) {
	data, err := c.datasetItems(ctx, "fetch_dataset", datasetID)
	if err != nil {
		return nil, err
	}
	var raw []apiReaction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", datasetID, err)
	}
	items := make([]analytics.ScrapedReaction, 0, len(raw))
	for _, r := range raw {
		items = append(items, r.toDomain())
	}
	return items, nil
}

// LatestRun returns the newest remembered run for postURL, refreshing its
// state when it had not finished. It returns nil without a run store.
func (c *Client) LatestRun(ctx context.Context, postURL string) (*analytics.ScraperRun, error) {
	if c.runs == nil {
		return nil, nil
	}
	run, err := c.runs.LatestForURL(ctx, postURL)
	if err != nil || run == nil {
		return nil, err
	}
	if run.Status.IsFinished() {
		return run, nil
	}
	fresh, err := c.Poll(ctx, run.ID)
	if err != nil {
		return run, nil
	}
	fresh.PostURL = postURL
	if fresh.StartedAt.IsZero() {
		fresh.StartedAt = run.StartedAt
	}
	c.remember(ctx, fresh)
	return fresh, nil
}

// Collection is the outcome of CollectReactions.
type Collection struct {
	Run       *analytics.ScraperRun
	Items     []analytics.ScrapedReaction
	FromCache bool
}

// CollectReactions returns the reactions of postURL. A succeeded run younger
// than the reuse window is read back instead of starting a new one.
func (c *Client) CollectReactions(ctx context.Context, postURL string) (*Collection, error) {
	latest, err := c.LatestRun(ctx, postURL)
	if err != nil {
		c.logger.Warn("Run lookup failed", zap.String("post_url", postURL), zap.Error(err))
	}
	if latest.IsReusable(c.now(), c.reuseWindow) {
		items, err := c.FetchDataset(ctx, latest.DatasetID)
		if err == nil {
			c.logger.Info("Reusing recent scraper run", zap.String("run_id", latest.ID))
			return &Collection{Run: latest, Items: items, FromCache: true}, nil
		}
		c.logger.Warn("Cached dataset unreadable, starting a new run", zap.String("run_id", latest.ID), zap.Error(err))
	}

	run, err := c.Trigger(ctx, postURL, c.maxItems)
	if err != nil {
		return nil, err
	}
	done, err := c.WaitForRun(ctx, run.ID, c.pollInterval, c.waitTimeout)
	if err != nil {
		if done != nil {
			done.PostURL = postURL
			done.StartedAt = run.StartedAt
			c.remember(ctx, done)
		}
		return nil, err
	}
	done.PostURL = postURL
	if done.StartedAt.IsZero() {
		done.StartedAt = run.StartedAt
	}

	items, err := c.FetchDataset(ctx, done.DatasetID)
	if err != nil {
		return nil, err
	}
	done.ItemCount = len(items)
	c.remember(ctx, done)
	c.archiveDataset(ctx, done, items)
	return &Collection{Run: done, Items: items}, nil
}

func (c *Client) remember(ctx context.Context, run *analytics.ScraperRun) {
	if c.runs == nil || run.PostURL == "" {
		return
	}
	if err := c.runs.Save(ctx, run); err != nil {
		c.logger.Warn("Saving scraper run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (c *Client) archiveDataset(ctx context.Context, run *analytics.ScraperRun, items []analytics.ScrapedReaction) {
	if c.archive == nil {
		return
	}
	key, err := c.archive.Archive(ctx, run.ID, run.PostURL, items)
	if err != nil {
		c.logger.Warn("Dataset archive failed", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	c.logger.Debug("Dataset archived", zap.String("run_id", run.ID), zap.String("key", key))
}
