package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mediavault/link-engine/internal/models"
	"github.com/mediavault/link-engine/internal/services"
)

// FileHandler handles file metadata registration from the ingestion
// pipeline
type FileHandler struct {
	fileService *services.FileService
}

// NewFileHandler creates a new file handler
func NewFileHandler(fileService *services.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

type registerFileRequest struct {
	BlobRef         string `json:"blob_ref" binding:"required"`
	Filename        string `json:"filename" binding:"required"`
	FileType        string `json:"file_type" binding:"required"`
	MimeType        string `json:"mime_type" binding:"required"`
	SizeBytes       int64  `json:"size_bytes" binding:"required"`
	DurationSeconds *int   `json:"duration_seconds"`
	Premium         bool   `json:"premium"`
}

// RegisterFile handles registering a newly ingested file's metadata
func (h *FileHandler) RegisterFile(c *gin.Context) {
	var req registerFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	file := &models.File{
		BlobRef:         req.BlobRef,
		Filename:        req.Filename,
		FileType:        req.FileType,
		MimeType:        req.MimeType,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
		Premium:         req.Premium,
	}
	if err := h.fileService.RegisterFile(c.Request.Context(), file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register file"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"file": file})
}

// GetFile handles fetching one file's metadata
func (h *FileHandler) GetFile(c *gin.Context) {
	fileID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}

	file, err := h.fileService.GetFile(c.Request.Context(), fileID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": file})
}
