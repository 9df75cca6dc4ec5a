package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/link-engine/internal/models"
)

// HashIDLength is the hex length of an access token
const HashIDLength = 32

// LinkStore persists access links. IssueSuperseding must revoke the
// active link for (file, device) and insert the replacement in one
// transaction, returning models.ErrUnavailable when a concurrent
// issuance wins the race.
type LinkStore interface {
	IssueSuperseding(ctx context.Context, link *models.AccessLink) error
	FindByHash(ctx context.Context, hashID string) (*models.AccessLink, error)
	ListByFile(ctx context.Context, fileID int64) ([]models.AccessLink, error)
	RevokeByHash(ctx context.Context, hashID string, at time.Time) error
}

// LinkService issues and resolves access links
type LinkService struct {
	store  LinkStore
	files  *FileService
	expiry time.Duration
}

// NewLinkService creates a new link service
func NewLinkService(store LinkStore, files *FileService, expiry time.Duration) *LinkService {
	return &LinkService{store: store, files: files, expiry: expiry}
}

// NewHashID generates a random access token, 32 lowercase hex chars
func NewHashID() (string, error) {
	buf := make([]byte, HashIDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate hash id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IssueLink creates a fresh link for (fileID, deviceID), atomically
// revoking any previously active link for the same pair. At most one
// link per pair is ever active; a lost race against a concurrent
// issuance is retried once before surfacing models.ErrUnavailable.
func (s *LinkService) IssueLink(ctx context.Context, fileID int64, deviceID string) (*models.AccessLink, error) {
	if _, err := s.files.GetFile(ctx, fileID); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		hashID, err := NewHashID()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		link := &models.AccessLink{
			ID:        uuid.New(),
			FileID:    fileID,
			DeviceID:  deviceID,
			HashID:    hashID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.expiry),
		}
		err = s.store.IssueSuperseding(ctx, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, models.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ResolveLink validates a presented token. Revoked and expired links
// are reported with distinct errors so the caller can log the reason,
// but handlers collapse every denial into the same response.
func (s *LinkService) ResolveLink(ctx context.Context, hashID string) (*models.AccessLink, error) {
	if len(hashID) != HashIDLength {
		return nil, models.ErrNotFound
	}
	link, err := s.store.FindByHash(ctx, hashID)
	if err != nil {
		return nil, err
	}
	if link.RevokedAt != nil {
		return nil, models.ErrRevoked
	}
	if !link.ExpiresAt.After(time.Now().UTC()) {
		return nil, models.ErrExpired
	}
	return link, nil
}

// ListLinks returns every link ever issued for a file, newest first
func (s *LinkService) ListLinks(ctx context.Context, fileID int64) ([]models.AccessLink, error) {
	return s.store.ListByFile(ctx, fileID)
}

// RevokeLink marks a link revoked. Revoking an already revoked link is
// a no-op.
func (s *LinkService) RevokeLink(ctx context.Context, hashID string) error {
	return s.store.RevokeByHash(ctx, hashID, time.Now().UTC())
}
