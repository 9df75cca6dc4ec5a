package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/middleware"
	"github.com/mediavault/link-engine/internal/models"
	"github.com/mediavault/link-engine/internal/services"
)

// StreamHandler serves authorized playback and download requests
type StreamHandler struct {
	accessService *services.AccessService
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(accessService *services.AccessService) *StreamHandler {
	return &StreamHandler{accessService: accessService}
}

// Play handles inline playback of a linked file
func (h *StreamHandler) Play(c *gin.Context) {
	h.serve(c, false)
}

// Download handles attachment download of a linked file
func (h *StreamHandler) Download(c *gin.Context) {
	h.serve(c, true)
}

// serve authorizes the token and proxies the blob bytes. Unknown,
// revoked and expired tokens all produce the same 404 so a caller
// cannot probe which tokens ever existed.
func (h *StreamHandler) serve(c *gin.Context, asAttachment bool) {
	hashID := c.Param("hash_id")

	grant, err := h.accessService.Authorize(c.Request.Context(), hashID, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimited):
			middleware.AccessDenials.WithLabelValues("rate_limited").Inc()
			retryAfter := 1
			var rl *models.RateLimitError
			if errors.As(err, &rl) {
				if secs := int(rl.RetryAfter.Seconds()); secs > retryAfter {
					retryAfter = secs
				}
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		case errors.Is(err, models.ErrUnauthorized):
			middleware.AccessDenials.WithLabelValues("not_entitled").Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "premium subscription required"})
		case models.Denied(err):
			middleware.AccessDenials.WithLabelValues("invalid_link").Inc()
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
		}
		return
	}

	stream, err := h.accessService.OpenStream(c.Request.Context(), grant, c.GetHeader("Range"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "storage unavailable"})
		return
	}
	defer stream.Body.Close()

	disposition := "inline"
	if asAttachment {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, grant.File.Filename))
	c.Header("Content-Type", grant.File.MimeType)
	c.Header("Accept-Ranges", "bytes")
	if stream.ContentLength >= 0 {
		c.Header("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	if stream.ContentRange != "" {
		c.Header("Content-Range", stream.ContentRange)
	}

	c.Status(stream.Status)
	io.Copy(c.Writer, stream.Body)
}
