package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediavault/link-engine/internal/models"
)

// AccessLogStore records authorization attempts for audit
type AccessLogStore struct {
	db *DB
}

// NewAccessLogStore creates a new access log store
func NewAccessLogStore(db *DB) *AccessLogStore {
	return &AccessLogStore{db: db}
}

// Record appends one authorization attempt. Audit writes never fail the
// request; the caller logs and drops the error.
func (s *AccessLogStore) Record(ctx context.Context, entry *models.AccessLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO access_logs (id, file_id, hash_id, client_ip, user_agent, success, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.FileID, entry.HashID, entry.ClientIP, entry.UserAgent, entry.Success, entry.Reason)
	if err != nil {
		return fmt.Errorf("failed to record access log: %w", err)
	}
	return nil
}
