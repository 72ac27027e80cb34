package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/domain/analytics"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.LinkedInConfig {
	return config.LinkedInConfig{
		BaseURL:          baseURL,
		AccessToken:      "token-123",
		RateLimitPerHour: 500,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
		RetryMaxBackoff:  5 * time.Millisecond,
		BreakerFailures:  3,
		BreakerWindow:    3,
		BreakerDelay:     time.Minute,
	}
}

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_SendsHeaders(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.Equal(t, "202501", r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "/adAccounts", r.URL.Path)
		assert.Equal(t, "search", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"elements":[{"id":507404993,"name":"Acme Ads","status":"ACTIVE","currency":"USD"}]}`)
	})

	accounts, err := NewClient(testConfig(srv.URL)).GetAdAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, AdAccount{ID: "507404993", Name: "Acme Ads", Status: "ACTIVE", Currency: "USD"}, accounts[0])
}

func TestClient_GetCampaigns(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adAccounts/42/adCampaigns", r.URL.Path)
		fmt.Fprint(w, `{"elements":[
			{"id":1001,"account":"urn:li:sponsoredAccount:42","campaignGroup":"urn:li:sponsoredCampaignGroup:7",
			 "name":"Q3 Launch","status":"ACTIVE","type":"SPONSORED_UPDATES",
			 "runSchedule":{"start":1719792000000,"end":1722470400000},
			 "dailyBudget":{"amount":"50.00","currencyCode":"USD"},
			 "targetingCriteria":{"include":{"and":[{"or":{"urn:li:adTargetingFacet:titles":["urn:li:title:117"]}}]}}},
			{"id":"1002","name":"Broken","status":"PAUSED","targetingCriteria":"not-an-object"}
		]}`)
	})

	campaigns, err := NewClient(testConfig(srv.URL)).GetCampaigns(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	c := campaigns[0]
	assert.Equal(t, "1001", c.ID)
	assert.Equal(t, "42", c.AccountID)
	assert.Equal(t, "7", c.CampaignGroupID)
	require.NotNil(t, c.Schedule)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), c.Schedule.Start)
	require.NotNil(t, c.Schedule.End)
	assert.True(t, c.DailyBudget.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, []string{"urn:li:title:117"}, c.Targeting.IncludeURNs(analytics.FacetType.IsTitle))

	assert.Equal(t, "1002", campaigns[1].ID)
	assert.True(t, campaigns[1].Targeting.IsEmpty())
	assert.Nil(t, campaigns[1].Schedule)
}

func TestClient_GetCampaignCreatives(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/creatives", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "campaigns=List(urn:li:sponsoredCampaign:1001)")
		fmt.Fprint(w, `{"elements":[
			{"id":"urn:li:sponsoredCreative:9","campaign":"urn:li:sponsoredCampaign:1001","intendedStatus":"ACTIVE",
			 "content":{"reference":"urn:li:share:7000"}},
			{"id":10,"type":"ARTICLE","status":"ACTIVE",
			 "variables":{"data":{"shareUrl":"https://example.com/a","text":{"text":"Read this"},"content":{"title":"A title"}}}}
		]}`)
	})

	creatives, err := NewClient(testConfig(srv.URL)).GetCampaignCreatives(context.Background(), "1001")
	require.NoError(t, err)
	require.Len(t, creatives, 2)

	assert.Equal(t, "9", creatives[0].ID)
	assert.Equal(t, "1001", creatives[0].CampaignID)
	assert.Equal(t, "ACTIVE", creatives[0].Status)
	assert.Equal(t, "urn:li:share:7000", creatives[0].Reference)

	assert.Equal(t, "https://example.com/a", creatives[1].ShareURL)
	assert.Equal(t, "Read this", creatives[1].Text)
	assert.Equal(t, "A title", creatives[1].Title)
}

func TestClient_EmptyResultIsNotAnError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[]}`)
	})

	creatives, err := NewClient(testConfig(srv.URL)).GetCampaignCreatives(context.Background(), "1")
	require.NoError(t, err)
	assert.NotNil(t, creatives)
	assert.Empty(t, creatives)
}

func TestClient_GetOrganizationShares(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "urn:li:organization:77", q.Get("author"))
		assert.Equal(t, "10", q.Get("start"))
		assert.Equal(t, "5", q.Get("count"))
		fmt.Fprint(w, `{"elements":[{"id":"urn:li:share:555","commentary":"Hello","createdAt":1719792000000,
			"content":{"article":{"title":"Launch"}}}]}`)
	})

	shares, err := NewClient(testConfig(srv.URL)).GetOrganizationShares(context.Background(), "77", 10, 5)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, analytics.Share{
		ID:          "555",
		ActivityURN: "urn:li:share:555",
		Text:        "Hello",
		Title:       "Launch",
		CreatedAt:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}, shares[0])
}

func TestClient_GetCampaignAnalytics(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "campaigns=List(urn:li:sponsoredCampaign:1,urn:li:sponsoredCampaign:2)")
		assert.Contains(t, r.URL.RawQuery, "dateRange=(start:(year:2024,month:1,day:1),end:(year:2024,month:12,day:31))")
		assert.Equal(t, "CAMPAIGN", r.URL.Query().Get("pivot"))
		fmt.Fprint(w, `{"elements":[
			{"pivotValues":["urn:li:sponsoredCampaign:1"],"dateRange":{"start":{"year":2024,"month":1,"day":1}},
			 "impressions":1000,"clicks":30,"totalEngagements":45,"costInUsd":"120.50"}
		]}`)
	})

	rows, err := NewClient(testConfig(srv.URL)).GetCampaignAnalytics(context.Background(), []string{"1", "2"}, "", DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	domain := CampaignAnalytics(rows)
	assert.Equal(t, "1", domain[0].CampaignID)
	assert.Equal(t, int64(1000), domain[0].Impressions)
	assert.True(t, domain[0].Spend.Equal(decimal.RequireFromString("120.5")))

	demo := DemographicRows("1", []AnalyticsRow{{Pivot: PivotCompany, PivotValue: "urn:li:organization:1035", Impressions: 5}})
	assert.Equal(t, "COMPANY", demo[0].PivotType)

	none, err := NewClient(testConfig(srv.URL)).GetCampaignAnalytics(context.Background(), nil, "", DateRange{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClient_GetCampaignPerformance(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DAILY", r.URL.Query().Get("timeGranularity"))
		assert.Equal(t, "CAMPAIGN", r.URL.Query().Get("pivot"))
		assert.Contains(t, r.URL.RawQuery, "dateRange=(start:(year:2024,month:3,day:1))")
		fmt.Fprint(w, `{"elements":[
			{"pivotValues":["urn:li:sponsoredCampaign:1"],"dateRange":{"start":{"year":2024,"month":3,"day":1}},"impressions":400},
			{"pivotValues":["urn:li:sponsoredCampaign:1"],"dateRange":{"start":{"year":2024,"month":3,"day":2}},"impressions":600}
		]}`)
	})

	rows, err := NewClient(testConfig(srv.URL)).GetCampaignPerformance(context.Background(), []string{"1"}, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), rows[1].Date)
	assert.Equal(t, int64(1000), analytics.SumImpressions(rows))
}

func TestClient_GetCampaignDemographics(t *testing.T) {
	var pivots []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		pivot := r.URL.Query().Get("pivot")
		pivots = append(pivots, pivot)
		assert.Equal(t, "ALL", r.URL.Query().Get("timeGranularity"))
		assert.Empty(t, r.URL.Query().Get("dateRange"))
		if pivot == PivotSeniority {
			fmt.Fprint(w, `{"elements":[{"pivotValues":["urn:li:seniority:8"],"impressions":70,"clicks":4}]}`)
			return
		}
		fmt.Fprint(w, `{"elements":[]}`)
	})

	rows, err := NewClient(testConfig(srv.URL)).GetCampaignDemographics(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{PivotCompany, PivotJobTitle, PivotSeniority, PivotIndustry}, pivots)
	require.Len(t, rows, 1)
	assert.Equal(t, analytics.DemographicRow{
		CampaignID:  "1",
		PivotType:   "SENIORITY",
		PivotValue:  "urn:li:seniority:8",
		Impressions: 70,
		Clicks:      4,
		Spend:       decimal.Zero,
	}, rows[0])

	t.Run("a failed pivot fails the breakdown", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"denied"}`, http.StatusForbidden)
		})
		_, err := NewClient(testConfig(srv.URL)).GetCampaignDemographics(context.Background(), "1")
		assert.ErrorContains(t, err, PivotCompany)
	})
}

func TestClient_LookupEntityName(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/adTargetingEntities", r.URL.Path)
		switch r.URL.Query().Get("q") {
		case "117":
			fmt.Fprint(w, `{"elements":[{"urn":"urn:li:title:117","localizedName":"Chief Executive Officer"}]}`)
		default:
			fmt.Fprint(w, `{"elements":[]}`)
		}
	})
	c := NewClient(testConfig(srv.URL))

	name, err := c.LookupEntityName(context.Background(), "TITLE", "117")
	require.NoError(t, err)
	assert.Equal(t, "Chief Executive Officer", name)

	name, err = c.LookupEntityName(context.Background(), "TITLE", "0")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"elements":[]}`)
	})

	_, err := NewClient(testConfig(srv.URL)).GetAdAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		sentinel  error
		wantCalls int32
	}{
		{"unauthorized is not retried", http.StatusUnauthorized, ErrUnauthorized, 1},
		{"forbidden is not retried", http.StatusForbidden, ErrUnauthorized, 1},
		{"rate limited is retried", http.StatusTooManyRequests, ErrRateLimited, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			})
			cfg := testConfig(srv.URL)
			cfg.BreakerFailures = 10
			cfg.BreakerWindow = 10

			_, err := NewClient(cfg).GetAdAccounts(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Message)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0
	c := NewClient(cfg)

	for i := 0; i < 3; i++ {
		_, err := c.GetAdAccounts(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.Health().CircuitState)

	_, err := c.GetAdAccounts(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, analytics.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "open breaker must not reach the API")
}

func TestClient_LocalRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"elements":[]}`)
	})
	cfg := testConfig(srv.URL)
	cfg.RateLimitPerHour = 2
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := NewClient(cfg, WithMetrics(metrics))

	for i := 0; i < 2; i++ {
		_, err := c.GetAdAccounts(context.Background())
		require.NoError(t, err)
	}
	_, err := c.GetAdAccounts(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Health().RateLimitRemaining)
	assert.Equal(t, float64(1), counterValue(t, metrics.limited))
	assert.Equal(t, float64(2), counterValue(t, metrics.requests.WithLabelValues("get_ad_accounts", "ok")))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestClient_CachesGetResponses(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"elements":[{"adTargetingFacetUrn":"urn:li:adTargetingFacet:titles","facetName":"titles"}]}`)
	})
	backing := cache.NewInMemoryCache(0)
	defer backing.Close()
	c := NewClient(testConfig(srv.URL), WithCache(backing))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		facets, err := c.GetTargetingFacets(ctx)
		require.NoError(t, err)
		require.Len(t, facets, 1)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Health().CacheEnabled)

	require.NoError(t, c.ClearCache(ctx))
	_, err := c.GetTargetingFacets(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Proxy(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		}
		fmt.Fprintf(w, `{"method":%q,"path":%q}`, r.Method, r.URL.Path)
	})
	backing := cache.NewInMemoryCache(0)
	defer backing.Close()
	c := NewClient(testConfig(srv.URL), WithCache(backing))
	ctx := context.Background()

	resp, err := c.Proxy(ctx, "get", "adAccounts/1", url.Values{"fields": {"id"}}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"GET","path":"/adAccounts/1"}`, string(resp.Body))

	_, err = c.Proxy(ctx, http.MethodGet, "/adAccounts/1", url.Values{"fields": {"id"}}, nil)
	require.NoError(t, err)

	resp, err = c.Proxy(ctx, http.MethodPost, "/adCampaigns", nil, []byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"POST","path":"/adCampaigns"}`, string(resp.Body))
	assert.Equal(t, int32(2), calls.Load(), "second GET should be cached, POST never is")
}

func TestClient_WritesAreNotRetried(t *testing.T) {
	var gets, posts atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		} else {
			gets.Add(1)
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	cfg := testConfig(srv.URL)
	cfg.BreakerFailures = 10
	cfg.BreakerWindow = 10
	c := NewClient(cfg)
	ctx := context.Background()

	_, err := c.Proxy(ctx, http.MethodPost, "/adCampaigns", nil, []byte(`{"name":"x"}`))
	require.Error(t, err)
	assert.Equal(t, int32(1), posts.Load())

	_, err = c.Proxy(ctx, http.MethodGet, "/adCampaigns", nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(3), gets.Load(), "GETs keep the configured retries")
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(testConfig(srv.URL)).GetAdAccounts(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
