package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campaignlens/backend/internal/infrastructure/auth"
	"github.com/campaignlens/backend/internal/infrastructure/cache"
	"github.com/campaignlens/backend/internal/infrastructure/config"
	"github.com/campaignlens/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret-key-at-least-32-chars",
		Issuer:    "test-issuer",
	})
	require.NoError(t, err)
	return svc
}

func issue(t *testing.T, svc *auth.JWTService, scopes ...string) *auth.IssuedToken {
	t.Helper()
	tok, err := svc.Issue("ops@campaignlens", scopes, time.Hour)
	require.NoError(t, err)
	return tok
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	svc := newTestJWTService(t)
	tok := issue(t, svc, auth.ScopeRead)

	router := gin.New()
	router.Use(JWTAuthMiddleware(DefaultJWTConfig(svc)))
	router.GET("/test", func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.Equal(t, "ops@campaignlens", GetJWTSubject(c))
		assert.Equal(t, []string{auth.ScopeRead}, claims.Scopes)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rec := serve(router, http.MethodGet, "/test", tok.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	svc := newTestJWTService(t)
	other, err := auth.NewJWTService(config.AuthConfig{JWTSecret: "another-secret-key-of-32-characters", Issuer: "test-issuer"})
	require.NoError(t, err)
	foreign, err := other.Issue("intruder", nil, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"wrong scheme", "Basic abc", dto.ErrCodeUnauthorized},
		{"empty bearer", "Bearer ", dto.ErrCodeUnauthorized},
		{"garbage token", "Bearer not-a-jwt", dto.ErrCodeTokenInvalid},
		{"foreign signature", "Bearer " + foreign.Token, dto.ErrCodeTokenInvalid},
	}

	router := gin.New()
	router.Use(JWTAuthMiddleware(DefaultJWTConfig(svc)))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	svc := newTestJWTService(t)
	cfg := DefaultJWTConfig(svc)
	cfg.SkipPathPrefixes = []string{"/public/"}

	router := gin.New()
	router.Use(JWTAuthMiddleware(cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/public/info", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/private", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/public/info", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/private", "").Code)
}

func TestJWTAuthMiddleware_RevokedToken(t *testing.T) {
	svc := newTestJWTService(t)
	store := cache.NewInMemoryCache(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	blacklist := auth.NewTokenBlacklist(store)

	tok := issue(t, svc, auth.ScopeRead)
	claims, err := svc.Validate(tok.Token)
	require.NoError(t, err)

	cfg := DefaultJWTConfig(svc)
	cfg.TokenBlacklist = blacklist
	router := gin.New()
	router.Use(JWTAuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/test", tok.Token).Code)

	require.NoError(t, blacklist.Revoke(context.Background(), claims.ID, time.Hour))
	rec := serve(router, http.MethodGet, "/test", tok.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, dto.ErrCodeTokenInvalid, errorCode(t, rec))
}

func TestJWTAuthMiddleware_CustomOnError(t *testing.T) {
	svc := newTestJWTService(t)
	cfg := DefaultJWTConfig(svc)
	cfg.OnError = func(c *gin.Context, err error) {
		c.AbortWithStatus(http.StatusTeapot)
	}
	router := gin.New()
	router.Use(JWTAuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusTeapot, serve(router, http.MethodGet, "/test", "").Code)
}

func TestRequireScope(t *testing.T) {
	svc := newTestJWTService(t)
	router := gin.New()
	router.Use(JWTAuthMiddleware(DefaultJWTConfig(svc)))
	router.POST("/analyze", RequireScope(auth.ScopeAnalyze), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		scopes []string
		want   int
	}{
		{"matching scope", []string{auth.ScopeAnalyze}, http.StatusOK},
		{"admin implies every scope", []string{auth.ScopeAdmin}, http.StatusOK},
		{"read only", []string{auth.ScopeRead}, http.StatusForbidden},
		{"no scopes", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := issue(t, svc, tt.scopes...)
			assert.Equal(t, tt.want, serve(router, http.MethodPost, "/analyze", tok.Token).Code)
		})
	}

	t.Run("without authentication", func(t *testing.T) {
		bare := gin.New()
		bare.GET("/x", RequireScope(auth.ScopeRead), func(c *gin.Context) { c.Status(http.StatusOK) })
		assert.Equal(t, http.StatusUnauthorized, serve(bare, http.MethodGet, "/x", "").Code)
	})
}
