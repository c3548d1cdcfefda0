package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"racketoutlet-be/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testSecret = []byte("middleware-secret")

func bearer(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthenticate(t *testing.T) {
	r := gin.New()
	r.Use(Authenticate(testSecret))
	r.GET("/me", func(c *gin.Context) {
		id, ok := utils.GetUserIDFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok, "role": utils.GetUserRoleFromContext(c.Request.Context())})
	})

	t.Run("Valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", bearer(t, jwt.MapClaims{"user_id": 5, "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()}))
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":5,"ok":true,"role":"ADMIN"}`, w.Body.String())
	})

	t.Run("Invalid token continues anonymously", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()

		r.ServeHTTP(w, req)

		assert.JSONEq(t, `{"id":0,"ok":false,"role":""}`, w.Body.String())
	})
}

func TestRequireAuthAndAdmin(t *testing.T) {
	r := gin.New()
	r.Use(Authenticate(testSecret))
	r.GET("/private", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin", RequireAuth(), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	userToken := bearer(t, jwt.MapClaims{"user_id": 9, "role": "USER"})

	t.Run("Anonymous is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"unauthorized"`)
	})

	t.Run("User passes auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", userToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("User is not admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", userToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter("internal-key")

	r := gin.New()
	r.Use(limiter.Middleware())
	r.POST("/api/v1/gateway/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/orders", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("Strict tier on webhook", func(t *testing.T) {
		codes := make([]int, 0, burstStrict+1)
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/gateway/webhook", nil)
			req.Header.Set("X-Device-ID", "gateway")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			codes = append(codes, w.Code)
		}

		assert.Equal(t, http.StatusOK, codes[0])
		assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
	})

	t.Run("Internal callers bypass strict tier", func(t *testing.T) {
		for i := 0; i < burstStrict+1; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/gateway/webhook", nil)
			req.Header.Set("X-Service-Auth", "internal-key")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("Separate buckets per tier", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.Header.Set("X-Device-ID", "gateway")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	limiter := NewRateLimiter("")
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.get("ip:1:general", limitGeneral, burstGeneral)
	assert.Len(t, limiter.visitors, 1)

	now = now.Add(visitorTTL + time.Second)
	limiter.evictIdle()

	assert.Empty(t, limiter.visitors)
}
