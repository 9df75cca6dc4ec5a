package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/middleware"
	"github.com/mediavault/link-engine/internal/models"
	"github.com/mediavault/link-engine/internal/services"
)

// LinkHandler handles link issuance requests
type LinkHandler struct {
	linkService        *services.LinkService
	fingerprintService *services.FingerprintService
	baseURL            string
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkService *services.LinkService, fingerprintService *services.FingerprintService, baseURL string) *LinkHandler {
	return &LinkHandler{
		linkService:        linkService,
		fingerprintService: fingerprintService,
		baseURL:            baseURL,
	}
}

type issueLinkRequest struct {
	FileID    int64            `json:"file_id" binding:"required"`
	DeviceID  string           `json:"device_id" binding:"required"`
	AccountID string           `json:"account_id"`
	Signals   services.Signals `json:"signals"`
}

// IssueLink handles creating a fresh access link for a (file, device)
// pair, superseding any prior active link
func (h *LinkHandler) IssueLink(c *gin.Context) {
	var req issueLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	signals := services.MergeHeaders(req.Signals, c.Request.Header)
	fp, err := h.fingerprintService.Observe(c.Request.Context(), req.DeviceID, req.AccountID, c.ClientIP(), signals)
	if err != nil {
		// degraded identity never blocks issuance
		fp = services.Resolve(signals)
	}

	link, err := h.linkService.IssueLink(c.Request.Context(), req.FileID, req.DeviceID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, models.ErrUnavailable):
			c.JSON(http.StatusConflict, gin.H{"error": "concurrent issuance, retry"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue link"})
		}
		return
	}

	middleware.LinksIssued.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"hash_id":                link.HashID,
		"play_url":               fmt.Sprintf("%s/play/%s", h.baseURL, link.HashID),
		"download_url":           fmt.Sprintf("%s/download/%s", h.baseURL, link.HashID),
		"expires_at":             link.ExpiresAt,
		"fingerprint_confidence": fp.Confidence,
	})
}

// ListLinks handles listing every link issued for a file, newest first
func (h *LinkHandler) ListLinks(c *gin.Context) {
	fileID, err := strconv.ParseInt(c.Param("file_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}

	links, err := h.linkService.ListLinks(c.Request.Context(), fileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links})
}
