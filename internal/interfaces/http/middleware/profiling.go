package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/campaignlens/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// unprofiledPrefixes are liveness and scrape routes left out of profiles.
var unprofiledPrefixes = []string{"/health", "/metrics", "/api/linkedin/health"}

// areaBySegment maps the first segment after the API version to the area
// label of a route.
var areaBySegment = map[string]string{
	"analyses":        "analysis",
	"correlations":    "correlation",
	"reconciliations": "reconciliation",
	"campaigns":       "campaign",
	"enrichment":      "enrichment",
	"system":          "system",
	"linkedin":        "linkedin",
}

// postActions maps the trailing action of a /posts route to its area;
// those routes are served by several handlers.
var postActions = map[string]string{
	"reconcile": "reconciliation",
	"insights":  "insight",
	"campaigns": "campaign",
}

// Profiling labels the request goroutines with method, route and area so
// CPU profiles split by pipeline area. Extra skip prefixes are added to the
// liveness and metrics routes.
func Profiling(skip ...string) gin.HandlerFunc {
	skip = append(skip, unprofiledPrefixes...)
	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, nil, skip) {
			c.Next()
			return
		}
		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c.Request.Method, c.FullPath()), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(method, route string) map[string]string {
	labels := map[string]string{telemetry.ProfilingLabelMethod: method}
	if route == "" {
		return labels
	}
	labels[telemetry.ProfilingLabelRoute] = route
	if area := routeArea(route); area != "" {
		labels[telemetry.ProfilingLabelArea] = area
	}
	return labels
}

// routeArea names the API area of a gin route pattern, or "" outside /api.
func routeArea(route string) string {
	rest, ok := strings.CutPrefix(route, "/api/")
	if !ok {
		return ""
	}
	segs := strings.Split(rest, "/")
	if isAPIVersion(segs[0]) {
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return ""
	}
	switch segs[0] {
	case "posts":
		for i := len(segs) - 1; i > 0; i-- {
			if area, ok := postActions[segs[i]]; ok {
				return area
			}
		}
		return "post"
	case "linkedin":
		if len(segs) > 1 && segs[1] == "proxy" {
			return "linkedin_proxy"
		}
	}
	return areaBySegment[segs[0]]
}

func isAPIVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(seg[1:])
	return err == nil
}
