package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/middleware"
	"github.com/mediavault/link-engine/internal/services"
)

// TrackingHandler handles ad-network impression postbacks
type TrackingHandler struct {
	governor *services.Governor
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(governor *services.Governor) *TrackingHandler {
	return &TrackingHandler{governor: governor}
}

type postbackRequest struct {
	DeviceID string `json:"device_id" form:"device_id" binding:"required"`
	HashID   string `json:"hash_id" form:"hash_id" binding:"required"`
}

// Postback records an impression, counting at most one per device per
// link per UTC day. Replays return 200 with counted=false so networks
// that retry do not see errors.
func (h *TrackingHandler) Postback(c *gin.Context) {
	var req postbackRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_id and hash_id are required"})
		return
	}

	counted, err := h.governor.RecordImpression(c.Request.Context(), req.DeviceID, req.HashID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record impression"})
		return
	}

	if counted {
		middleware.ImpressionsCounted.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"counted": counted})
}
