package services

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/link-engine/internal/models"
)

// BlobStream is an open byte stream from the blob store. Status and the
// range headers mirror what the blob store returned so partial-content
// responses pass through unchanged.
type BlobStream struct {
	Body          io.ReadCloser
	Status        int
	ContentLength int64
	ContentRange  string
}

// BlobOpener opens a stream for a stored blob, honoring an optional
// Range header value
type BlobOpener interface {
	OpenStream(ctx context.Context, blobRef, rangeHeader string) (*BlobStream, error)
}

// EntitlementChecker asks the subscription service whether a device may
// play premium content
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, deviceID string) (bool, error)
}

// AccessLogRecorder persists authorization attempt records
type AccessLogRecorder interface {
	Record(ctx context.Context, entry *models.AccessLog) error
}

// Grant is a successful authorization for one request
type Grant struct {
	File *models.File
	Link *models.AccessLink
}

// AccessService runs the full authorization sequence for playback and
// download requests
type AccessService struct {
	links        *LinkService
	files        *FileService
	governor     *Governor
	blobs        BlobOpener
	entitlements EntitlementChecker
	logs         AccessLogRecorder
	playLimit    Limit
}

// NewAccessService creates a new access service
func NewAccessService(links *LinkService, files *FileService, governor *Governor, blobs BlobOpener, entitlements EntitlementChecker, logs AccessLogRecorder, playLimit Limit) *AccessService {
	return &AccessService{
		links:        links,
		files:        files,
		governor:     governor,
		blobs:        blobs,
		entitlements: entitlements,
		logs:         logs,
		playLimit:    playLimit,
	}
}

// Authorize validates a presented token end to end: link state first,
// then the per-device play budget, then entitlement for premium files.
// Every attempt is logged with its outcome; the entitlement check fails
// closed.
func (s *AccessService) Authorize(ctx context.Context, hashID, clientIP, userAgent string) (*Grant, error) {
	link, err := s.links.ResolveLink(ctx, hashID)
	if err != nil {
		s.logAttempt(ctx, 0, hashID, clientIP, userAgent, false, reasonFor(err))
		return nil, err
	}

	decision, err := s.governor.CheckAndConsume(ctx, "play", link.DeviceID, s.playLimit)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.logAttempt(ctx, link.FileID, hashID, clientIP, userAgent, false, "rate_limited")
		return nil, &models.RateLimitError{RetryAfter: decision.RetryAfter}
	}

	file, err := s.files.GetFile(ctx, link.FileID)
	if err != nil {
		return nil, err
	}

	if file.Premium {
		entitled, err := s.entitlements.IsEntitled(ctx, link.DeviceID)
		if err != nil {
			s.logAttempt(ctx, link.FileID, hashID, clientIP, userAgent, false, "entitlement_unavailable")
			return nil, models.ErrUnauthorized
		}
		if !entitled {
			s.logAttempt(ctx, link.FileID, hashID, clientIP, userAgent, false, "not_entitled")
			return nil, models.ErrUnauthorized
		}
	}

	s.logAttempt(ctx, link.FileID, hashID, clientIP, userAgent, true, "ok")
	return &Grant{File: file, Link: link}, nil
}

// OpenStream opens the granted file's bytes, passing the client's Range
// header through to the blob store
func (s *AccessService) OpenStream(ctx context.Context, grant *Grant, rangeHeader string) (*BlobStream, error) {
	return s.blobs.OpenStream(ctx, grant.File.BlobRef, rangeHeader)
}

func (s *AccessService) logAttempt(ctx context.Context, fileID int64, hashID, clientIP, userAgent string, success bool, reason string) {
	entry := &models.AccessLog{
		ID:        uuid.New(),
		FileID:    fileID,
		HashID:    hashID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   success,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		log.Printf("failed to record access log: %v", err)
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, models.ErrRevoked):
		return "revoked"
	case errors.Is(err, models.ErrExpired):
		return "expired"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
