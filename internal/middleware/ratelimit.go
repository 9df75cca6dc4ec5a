package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/services"
)

// IdentityFunc extracts the rate-limit identity from a request
type IdentityFunc func(c *gin.Context) string

// IdentityByDevice keys the limit on the request's device_id, wherever
// the endpoint carries it (query, JSON body, form), falling back to
// client IP for requests that carry none. The JSON body is restored
// after peeking so handlers can still bind it.
func IdentityByDevice(c *gin.Context) string {
	if deviceID := c.Query("device_id"); deviceID != "" {
		return deviceID
	}
	if strings.Contains(c.ContentType(), "json") {
		if deviceID := peekJSONDeviceID(c); deviceID != "" {
			return deviceID
		}
	} else if deviceID := c.PostForm("device_id"); deviceID != "" {
		return deviceID
	}
	return c.ClientIP()
}

func peekJSONDeviceID(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.DeviceID
}

// IdentityByIP keys the limit on client IP
func IdentityByIP(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitMiddleware enforces a fixed-window limit per identity for
// one scope. Denied requests get a 429 with a Retry-After header.
func RateLimitMiddleware(governor *services.Governor, scope string, limit services.Limit, identity IdentityFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := governor.CheckAndConsume(c.Request.Context(), scope, identity(c), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			c.Abort()
			return
		}
		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
