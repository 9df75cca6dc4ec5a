package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImpressionStore persists daily impression records
type ImpressionStore struct {
	db *DB
}

// NewImpressionStore creates a new impression store
func NewImpressionStore(db *DB) *ImpressionStore {
	return &ImpressionStore{db: db}
}

// InsertOnce inserts the impression if (device_id, hash_id, day) has not
// been counted yet. Returns true when the row was inserted, false when a
// record for the composite key already exists. The unique constraint
// makes this safe under concurrent replays of the same key.
func (s *ImpressionStore) InsertOnce(ctx context.Context, deviceID, hashID string, day time.Time) (bool, error) {
	tag, err := s.db.Pool.Exec(ctx,
		`INSERT INTO impressions (id, device_id, hash_id, impression_date, count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (device_id, hash_id, impression_date) DO NOTHING`,
		uuid.New(), deviceID, hashID, day)
	if err != nil {
		return false, fmt.Errorf("failed to insert impression: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountForDay returns the stored count for one composite key, 0 if none
func (s *ImpressionStore) CountForDay(ctx context.Context, deviceID, hashID string, day time.Time) (int, error) {
	var count int
	err := s.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM impressions
		 WHERE device_id = $1 AND hash_id = $2 AND impression_date = $3`,
		deviceID, hashID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count impressions: %w", err)
	}
	return count, nil
}

// PurgeBefore deletes impression rows older than the retention cutoff
func (s *ImpressionStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx,
		"DELETE FROM impressions WHERE impression_date < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge impressions: %w", err)
	}
	return tag.RowsAffected(), nil
}
