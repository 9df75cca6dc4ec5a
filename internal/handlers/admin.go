package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/models"
	"github.com/mediavault/link-engine/internal/services"
)

// AdminHandler handles JWT-protected operational endpoints
type AdminHandler struct {
	linkService        *services.LinkService
	fingerprintService *services.FingerprintService
	keyService         *services.KeyService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(linkService *services.LinkService, fingerprintService *services.FingerprintService, keyService *services.KeyService) *AdminHandler {
	return &AdminHandler{
		linkService:        linkService,
		fingerprintService: fingerprintService,
		keyService:         keyService,
	}
}

// RevokeLink handles manually revoking a link by its token
func (h *AdminHandler) RevokeLink(c *gin.Context) {
	hashID := c.Param("hash_id")

	err := h.linkService.RevokeLink(c.Request.Context(), hashID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// Clusters handles the multi-account device report. lookback_hours and
// limit are optional query parameters.
func (h *AdminHandler) Clusters(c *gin.Context) {
	lookbackHours, _ := strconv.Atoi(c.DefaultQuery("lookback_hours", "168"))
	if lookbackHours <= 0 {
		lookbackHours = 168
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	clusters, err := h.fingerprintService.Clusters(c.Request.Context(), time.Duration(lookbackHours)*time.Hour, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build cluster report"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

type createKeyRequest struct {
	EndpointName string `json:"endpoint_name" binding:"required"`
}

// CreateKey handles minting a database-backed endpoint key. The
// plaintext key appears in this response only.
func (h *AdminHandler) CreateKey(c *gin.Context) {
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint_name is required"})
		return
	}

	plaintext, key, err := h.keyService.CreateKey(c.Request.Context(), req.EndpointName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"key": key, "api_key": plaintext})
}

// ListKeys handles listing endpoint keys, hashes omitted
func (h *AdminHandler) ListKeys(c *gin.Context) {
	keys, err := h.keyService.ListKeys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}
