package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/link-engine/internal/services"
)

func setupLimitedRouter(t *testing.T, limit services.Limit) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	governor := services.NewGovernor(nil, nil)

	router := gin.New()
	router.POST("/issue", RateLimitMiddleware(governor, "api", limit, IdentityByDevice), func(c *gin.Context) {
		// the handler must still be able to bind the peeked body
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"device_id": req.DeviceID})
	})
	return router
}

func postJSON(router *gin.Engine, body map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/issue", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimitKeysOnJSONDeviceID(t *testing.T) {
	router := setupLimitedRouter(t, services.Limit{Max: 1, Window: time.Minute})

	w := postJSON(router, map[string]string{"device_id": "device-a", "file_id": "1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "device-a", resp["device_id"])

	// same device exhausts its budget even though the client IP is shared
	w = postJSON(router, map[string]string{"device_id": "device-a"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// a different device from the same IP is unaffected
	w = postJSON(router, map[string]string{"device_id": "device-b"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	router := setupLimitedRouter(t, services.Limit{Max: 1, Window: time.Minute})

	w := postJSON(router, map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// bodiless requests from the same IP share one budget
	w = postJSON(router, map[string]string{})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestIdentityByDeviceQueryWins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/issue?device_id=from-query", nil)

	assert.Equal(t, "from-query", IdentityByDevice(c))
}
