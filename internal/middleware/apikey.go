package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// DBVerifyFunc checks a presented key against the database-backed
// endpoint key store. found is true when the store holds active keys
// for the endpoint; ok is true when one of them matched.
type DBVerifyFunc func(ctx context.Context, endpointName, presented string) (found, ok bool, err error)

// APIKeyResolver resolves the expected credential for an endpoint from
// an ordered chain of sources. A tier that is configured decides the
// request; it is never skipped because the key failed to match.
type APIKeyResolver struct {
	endpointTokens map[string]string
	globalToken    string
	dbVerify       DBVerifyFunc
}

// NewAPIKeyResolver creates a resolver over per-endpoint config tokens,
// a global config token, and the legacy key store. dbVerify may be nil
// when the store tier is disabled.
func NewAPIKeyResolver(endpointTokens map[string]string, globalToken string, dbVerify DBVerifyFunc) *APIKeyResolver {
	return &APIKeyResolver{
		endpointTokens: endpointTokens,
		globalToken:    globalToken,
		dbVerify:       dbVerify,
	}
}

// ExtractKey pulls the presented API key from the request: X-API-Key
// header first, then the api_key query parameter, then a Bearer token
func ExtractKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if key := c.Query("api_key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// Authorize reports whether the presented key is valid for the named
// endpoint. Resolution order: endpoint config token, global config
// token, database key store, endpoint env var, global env var.
func (r *APIKeyResolver) Authorize(ctx context.Context, endpointName, presented string) bool {
	if token, ok := r.endpointTokens[endpointName]; ok && token != "" {
		return equalKeys(presented, token)
	}
	if r.globalToken != "" {
		return equalKeys(presented, r.globalToken)
	}
	if r.dbVerify != nil {
		found, ok, err := r.dbVerify(ctx, endpointName, presented)
		if err == nil && found {
			return ok
		}
	}
	envName := "LINKENGINE_" + strings.ToUpper(endpointName) + "_API_KEY"
	if token := os.Getenv(envName); token != "" {
		return equalKeys(presented, token)
	}
	if token := os.Getenv("LINKENGINE_API_KEY"); token != "" {
		return equalKeys(presented, token)
	}
	return false
}

func equalKeys(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// APIKeyMiddleware creates middleware enforcing the key chain for one
// named endpoint
func APIKeyMiddleware(resolver *APIKeyResolver, endpointName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := ExtractKey(c)
		if presented == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			c.Abort()
			return
		}
		if !resolver.Authorize(c.Request.Context(), endpointName, presented) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			c.Abort()
			return
		}
		c.Set("endpoint", endpointName)
		c.Next()
	}
}
