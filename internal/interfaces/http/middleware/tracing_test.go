package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracingWithConfig_SpanNamedAfterRoute(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(Tracing())
	router.GET("/api/v1/posts/:id/insights", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/abc/insights", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	findSpan(t, sr, "GET /api/v1/posts/:id/insights")
}

func TestTracingAttributeInjector(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(RequestID())
	router.Use(TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test-service"}))
	router.Use(func(c *gin.Context) {
		c.Set(JWTSubjectKey, "ops@campaignlens")
		c.Next()
	})
	router.Use(TracingAttributeInjector())
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "test-request-id-123")
	router.ServeHTTP(httptest.NewRecorder(), req)

	span := findSpan(t, sr, "GET /test")

	requestID, ok := spanAttr(span, "request_id")
	require.True(t, ok, "request_id attribute missing")
	assert.Equal(t, "test-request-id-123", requestID.AsString())

	subject, ok := spanAttr(span, "subject")
	require.True(t, ok, "subject attribute missing")
	assert.Equal(t, "ops@campaignlens", subject.AsString())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status      int
		description string
	}{
		{http.StatusBadRequest, "Client Error"},
		{http.StatusUnauthorized, "Unauthorized"},
		{http.StatusForbidden, "Forbidden"},
		{http.StatusNotFound, "Not Found"},
		{http.StatusTooManyRequests, "Rate Limited"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := setupTestTracer(t)

			router := gin.New()
			router.Use(Tracing())
			router.Use(SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) { c.Status(tt.status) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, tt.status, w.Code)

			span := findSpan(t, sr, "GET /test")
			assert.Equal(t, codes.Error, span.Status().Code)
			assert.Equal(t, tt.description, span.Status().Description)

			code, ok := spanAttr(span, "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())
		})
	}

	t.Run("server error", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(Tracing())
		router.Use(SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		// otelgin may set its own description for 5xx.
		assert.Equal(t, codes.Error, findSpan(t, sr, "GET /test").Status().Code)
	})

	t.Run("success leaves status unset", func(t *testing.T) {
		sr := setupTestTracer(t)

		router := gin.New()
		router.Use(Tracing())
		router.Use(SpanErrorMarker())
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.NotEqual(t, codes.Error, findSpan(t, sr, "GET /test").Status().Code)
	})

	t.Run("no recording span", func(t *testing.T) {
		otel.SetTracerProvider(noop.NewTracerProvider())

		router := gin.New()
		router.Use(SpanErrorMarker())
		router.Use(TracingAttributeInjector())
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "campaignlens-api", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name    string
		ctxID   string
		header  string
		want    string
		wantLen int
	}{
		{name: "context wins", ctxID: "ctx-id", header: "header-id", want: "ctx-id"},
		{name: "header fallback", header: "header-id", want: "header-id"},
		{name: "long header truncated", header: strings.Repeat("b", 200), wantLen: MaxRequestIDLength},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.ctxID != "" {
				c.Set(RequestIDKey, tt.ctxID)
			}
			if tt.header != "" {
				c.Request.Header.Set(RequestIDHeader, tt.header)
			}

			got := getRequestID(c)
			if tt.wantLen > 0 {
				assert.Len(t, got, tt.wantLen)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
