package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func performKeyedRequest(t *testing.T, resolver *APIKeyResolver, endpoint string, decorate func(*http.Request)) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", APIKeyMiddleware(resolver, endpoint), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if decorate != nil {
		decorate(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestAPIKeyMiddlewareMissingKey(t *testing.T) {
	resolver := NewAPIKeyResolver(nil, "global-token", nil)
	code := performKeyedRequest(t, resolver, "links", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAPIKeyExtractionSources(t *testing.T) {
	resolver := NewAPIKeyResolver(nil, "global-token", nil)

	tests := []struct {
		name     string
		decorate func(*http.Request)
		want     int
	}{
		{"header", func(r *http.Request) { r.Header.Set("X-API-Key", "global-token") }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "api_key=global-token" }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer global-token") }, http.StatusOK},
		{"wrong key", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, performKeyedRequest(t, resolver, "links", tt.decorate))
		})
	}
}

func TestAuthorizeEndpointTokenBeatsGlobal(t *testing.T) {
	resolver := NewAPIKeyResolver(map[string]string{"links": "links-token"}, "global-token", nil)
	ctx := context.Background()

	assert.True(t, resolver.Authorize(ctx, "links", "links-token"))
	// the endpoint tier decides; the global token is never consulted
	assert.False(t, resolver.Authorize(ctx, "links", "global-token"))
	// endpoints without their own token use the global one
	assert.True(t, resolver.Authorize(ctx, "tracking", "global-token"))
}

func TestAuthorizeDBTier(t *testing.T) {
	dbVerify := func(ctx context.Context, endpointName, presented string) (bool, bool, error) {
		if endpointName != "links" {
			return false, false, nil
		}
		return true, presented == "db-key", nil
	}
	resolver := NewAPIKeyResolver(nil, "", dbVerify)
	ctx := context.Background()

	assert.True(t, resolver.Authorize(ctx, "links", "db-key"))
	assert.False(t, resolver.Authorize(ctx, "links", "wrong"))
}

func TestAuthorizeEnvFallback(t *testing.T) {
	t.Setenv("LINKENGINE_TRACKING_API_KEY", "env-tracking")
	t.Setenv("LINKENGINE_API_KEY", "env-global")

	// db tier holds no key for the endpoint, so env tiers apply
	dbVerify := func(ctx context.Context, endpointName, presented string) (bool, bool, error) {
		return false, false, nil
	}
	resolver := NewAPIKeyResolver(nil, "", dbVerify)
	ctx := context.Background()

	assert.True(t, resolver.Authorize(ctx, "tracking", "env-tracking"))
	assert.False(t, resolver.Authorize(ctx, "tracking", "env-global"))
	assert.True(t, resolver.Authorize(ctx, "links", "env-global"))
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "test-secret"

	router := gin.New()
	router.GET("/admin", JWTMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": GetAdminSubject(c)})
	})

	token, err := GenerateToken("operator", "admin", JWTConfig{Secret: secret, Expiration: time.Minute})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", token, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
