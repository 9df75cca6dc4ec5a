package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mediavault/link-engine/internal/models"
)

// LinkStore persists access links
type LinkStore struct {
	db *DB
}

// NewLinkStore creates a new link store
func NewLinkStore(db *DB) *LinkStore {
	return &LinkStore{db: db}
}

// serialization failure or unique violation on the active-link index,
// raised when two issuance transactions race on the same (file, device)
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "23505"
	}
	return false
}

// IssueSuperseding revokes the current active link for the new link's
// (file_id, device_id) pair and inserts the new link in one transaction.
// The partial unique index on active links guarantees a concurrent
// issuance cannot leave two active links; the loser returns
// models.ErrUnavailable for the service layer to retry.
func (s *LinkStore) IssueSuperseding(ctx context.Context, link *models.AccessLink) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE access_links SET revoked_at = $1
		 WHERE file_id = $2 AND device_id = $3 AND revoked_at IS NULL`,
		time.Now(), link.FileID, link.DeviceID)
	if err != nil {
		if isConflict(err) {
			return models.ErrUnavailable
		}
		return fmt.Errorf("failed to revoke prior link: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO access_links (id, file_id, device_id, hash_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.FileID, link.DeviceID, link.HashID, link.CreatedAt, link.ExpiresAt)
	if err != nil {
		if isConflict(err) {
			return models.ErrUnavailable
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isConflict(err) {
			return models.ErrUnavailable
		}
		return fmt.Errorf("failed to commit link issuance: %w", err)
	}
	return nil
}

// FindByHash retrieves a link by its token, revoked or not
func (s *LinkStore) FindByHash(ctx context.Context, hashID string) (*models.AccessLink, error) {
	var link models.AccessLink
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, file_id, device_id, hash_id, created_at, expires_at, revoked_at
		 FROM access_links WHERE hash_id = $1`,
		hashID).Scan(&link.ID, &link.FileID, &link.DeviceID, &link.HashID,
		&link.CreatedAt, &link.ExpiresAt, &link.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find link: %w", err)
	}
	return &link, nil
}

// ListByFile retrieves all links for a file, most recent first
func (s *LinkStore) ListByFile(ctx context.Context, fileID int64) ([]models.AccessLink, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, file_id, device_id, hash_id, created_at, expires_at, revoked_at
		 FROM access_links WHERE file_id = $1 ORDER BY created_at DESC`,
		fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []models.AccessLink
	for rows.Next() {
		var l models.AccessLink
		err := rows.Scan(&l.ID, &l.FileID, &l.DeviceID, &l.HashID,
			&l.CreatedAt, &l.ExpiresAt, &l.RevokedAt)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// RevokeByHash soft-revokes a link by token (admin action).
// Revoking an already-revoked link is a no-op.
func (s *LinkStore) RevokeByHash(ctx context.Context, hashID string, at time.Time) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE access_links SET revoked_at = $1
		 WHERE hash_id = $2 AND revoked_at IS NULL`,
		at, hashID)
	if err != nil {
		return fmt.Errorf("failed to revoke link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish never-existed from already-revoked for the caller
		if _, err := s.FindByHash(ctx, hashID); err != nil {
			return err
		}
	}
	return nil
}
