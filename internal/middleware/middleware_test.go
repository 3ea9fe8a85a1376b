package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/examsim-backend/internal/config"
	"github.com/stemsi/examsim-backend/internal/service"
)

func newAuth() *service.AuthService {
	return service.NewAuthService(&config.Config{JWTSecret: "middleware-secret", JWTExpiry: time.Hour})
}

func TestRequireJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()

	r := gin.New()
	r.GET("/me", RequireJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).OwnerID())
	})

	token, err := auth.GenerateToken("alice", "Alice", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query fallback", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "alice", rec.Body.String())
			}
		})
	}
}

func TestRequireWSAuthNeedsQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()

	r := gin.New()
	r.GET("/stream", RequireWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	token, err := auth.GenerateToken("alice", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterRefills(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	rl := NewRateLimiter(2, time.Minute, done)
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("sub:alice"))
	assert.True(t, rl.Allow("sub:alice"))
	assert.False(t, rl.Allow("sub:alice"))
	assert.True(t, rl.Allow("sub:bob"), "buckets are per key")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("sub:alice"))
}

func TestRateLimiterMiddlewareKeysBySubject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newAuth()
	done := make(chan struct{})
	defer close(done)

	rl := NewRateLimiter(1, time.Minute, done)
	r := gin.New()
	r.GET("/x", RequireJWT(auth), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(sub string) int {
		token, err := auth.GenerateToken(sub, "", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("alice"))
	assert.Equal(t, http.StatusTooManyRequests, call("alice"))
	assert.Equal(t, http.StatusOK, call("bob"))
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(BrotliWithConfig(BrotliConfig{MinLength: 16, SkipPaths: []string{"/metrics"}}))
	body := make([]byte, 4096)
	for i := range body {
		body[i] = 'a'
	}
	r.GET("/big", func(c *gin.Context) { c.Data(http.StatusOK, "text/plain", body) })
	r.GET("/metrics", func(c *gin.Context) { c.Data(http.StatusOK, "text/plain", body) })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	assert.Less(t, rec.Body.Len(), len(body))

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, len(body), rec.Body.Len())
}
