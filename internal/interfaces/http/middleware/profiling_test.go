package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// pprofLabels reads the profiling labels visible to a handler.
func pprofLabels(c *gin.Context) map[string]string {
	got := map[string]string{}
	for _, key := range []string{telemetry.ProfilingLabelMethod, telemetry.ProfilingLabelRoute, telemetry.ProfilingLabelArea} {
		if v, ok := pprof.Label(c.Request.Context(), key); ok {
			got[key] = v
		}
	}
	return got
}

func TestProfiling_Labels(t *testing.T) {
	tests := []struct {
		name   string
		method string
		route  string
		target string
		want   map[string]string
	}{
		{
			name:   "reconcile is a reconciliation",
			method: http.MethodPost,
			route:  "/api/v1/posts/:id/reconcile",
			target: "/api/v1/posts/42/reconcile",
			want:   map[string]string{"method": "POST", "route": "/api/v1/posts/:id/reconcile", "area": "reconciliation"},
		},
		{
			name:   "analysis status",
			method: http.MethodGet,
			route:  "/api/v1/analyses/:id/status",
			target: "/api/v1/analyses/a-1/status",
			want:   map[string]string{"method": "GET", "route": "/api/v1/analyses/:id/status", "area": "analysis"},
		},
		{
			name:   "proxy is split from the linkedin reads",
			method: http.MethodPost,
			route:  "/api/linkedin/proxy/*path",
			target: "/api/linkedin/proxy/adAccounts",
			want:   map[string]string{"method": "POST", "route": "/api/linkedin/proxy/*path", "area": "linkedin_proxy"},
		},
		{
			name:   "unmatched route keeps the method only",
			method: http.MethodGet,
			target: "/api/v1/unknown",
			want:   map[string]string{"method": "GET"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(Profiling())
			var got map[string]string
			if tt.route != "" {
				r.Handle(tt.method, tt.route, func(c *gin.Context) {
					got = pprofLabels(c)
					c.Status(http.StatusOK)
				})
			} else {
				r.NoRoute(func(c *gin.Context) {
					got = pprofLabels(c)
					c.Status(http.StatusNotFound)
				})
			}

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfiling_Skips(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/api/linkedin/health", "/api/v1/system/ping"} {
		t.Run(path, func(t *testing.T) {
			r := gin.New()
			r.Use(Profiling("/api/v1/system/ping"))
			labelled := true
			r.GET(path, func(c *gin.Context) {
				_, labelled = pprof.Label(c.Request.Context(), telemetry.ProfilingLabelMethod)
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.False(t, labelled)
		})
	}
}

func TestRouteArea(t *testing.T) {
	tests := map[string]string{
		"/api/v1/analyses":                            "analysis",
		"/api/v1/correlations":                        "correlation",
		"/api/v1/reconciliations/batch":               "reconciliation",
		"/api/v1/posts/:id/insights":                  "insight",
		"/api/v1/posts/:id/campaigns/:campaignId":     "campaign",
		"/api/v1/posts/:id":                           "post",
		"/api/v2/campaigns/:id/sync":                  "campaign",
		"/api/v1/enrichment/queue":                    "enrichment",
		"/api/linkedin/accounts/:accountId/campaigns": "linkedin",
		"/api/linkedin/proxy/*path":                   "linkedin_proxy",
		"/api/vx/analyses":                            "",
		"/health":                                     "",
		"":                                            "",
	}
	for route, want := range tests {
		t.Run(route, func(t *testing.T) {
			assert.Equal(t, want, routeArea(route))
		})
	}
}
