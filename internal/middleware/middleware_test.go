package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/auth"
	"chat-core/internal/observability"
)

func setupRouter(required bool) (*gin.Engine, *auth.TokenService) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewTokenService("secret", time.Hour)
	r := gin.New()
	r.Use(RequestID(), AuthMiddleware(tokens, required))
	r.GET("/me", RequireUser(), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "request_id": observability.RequestIDFromContext(c.Request.Context())})
	})
	r.GET("/admin", RequireRole(1), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r, tokens
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddlewareBearer(t *testing.T) {
	r, tokens := setupRouter(true)
	tok, err := tokens.Issue(5, 2)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Request-ID", "abc")
	rec := do(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":5,"request_id":"abc"}`, rec.Body.String())
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil)
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	r, _ := setupRouter(true)

	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	// the dev header is ignored when auth is required
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "3")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)
}

func TestAuthMiddlewareOptional(t *testing.T) {
	r, tokens := setupRouter(false)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "3")
	rec := do(r, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)

	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)

	admin, err := tokens.Issue(1, 1)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	assert.Equal(t, http.StatusNoContent, do(r, req).Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://app.test"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := do(r, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = do(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	assert.True(t, OriginAllowed(nil, "http://any"))
}

func TestNoSniff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/uploads/x", NoSniff(), func(c *gin.Context) { c.String(http.StatusOK, "x") })

	rec := do(r, httptest.NewRequest(http.MethodGet, "/uploads/x", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
