package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediavault/link-engine/internal/models"
)

// FingerprintStore persists device fingerprints and their sightings
type FingerprintStore struct {
	db *DB
}

// NewFingerprintStore creates a new fingerprint store
func NewFingerprintStore(db *DB) *FingerprintStore {
	return &FingerprintStore{db: db}
}

// Upsert records the latest fingerprint for a device. Last-writer-wins:
// soft signals and last_seen are overwritten on every sighting, which is
// acceptable because the upsert is commutative per device.
func (s *FingerprintStore) Upsert(ctx context.Context, fp *models.DeviceFingerprint) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO device_fingerprints
		   (device_id, hardware_signature, composite_hash, confidence,
		    screen_resolution, timezone_name, language, user_agent, first_seen, last_seen)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (device_id) DO UPDATE SET
		   hardware_signature = EXCLUDED.hardware_signature,
		   composite_hash = EXCLUDED.composite_hash,
		   confidence = EXCLUDED.confidence,
		   screen_resolution = EXCLUDED.screen_resolution,
		   timezone_name = EXCLUDED.timezone_name,
		   language = EXCLUDED.language,
		   user_agent = EXCLUDED.user_agent,
		   last_seen = EXCLUDED.last_seen`,
		fp.DeviceID, fp.HardwareSignature, fp.CompositeHash, fp.Confidence,
		fp.ScreenResolution, fp.TimezoneName, fp.Language, fp.UserAgent, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert fingerprint: %w", err)
	}
	return nil
}

// RecordObservation stores one sighting of a device for cluster analysis
func (s *FingerprintStore) RecordObservation(ctx context.Context, obs *models.FingerprintObservation) error {
	if obs.ID == uuid.Nil {
		obs.ID = uuid.New()
	}
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO fingerprint_observations (id, device_id, account_id, ip_address, hardware_signature, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.ID, obs.DeviceID, obs.AccountID, obs.IPAddress, obs.HardwareSignature, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}
	return nil
}

// Clusters reports hardware signatures shared by more than one account
// across more than one IP within the lookback window. Unavailable
// sentinel signatures are excluded so scripted clients that omit
// collection cannot be clustered together.
func (s *FingerprintStore) Clusters(ctx context.Context, since time.Time, unavailable string, limit int) ([]models.FingerprintCluster, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT hardware_signature,
		        array_agg(DISTINCT account_id) AS account_ids,
		        count(DISTINCT account_id) AS account_count,
		        count(DISTINCT ip_address) AS ip_count
		 FROM fingerprint_observations
		 WHERE observed_at >= $1
		   AND account_id <> ''
		   AND hardware_signature <> $2
		 GROUP BY hardware_signature
		 HAVING count(DISTINCT account_id) > 1 AND count(DISTINCT ip_address) > 1
		 ORDER BY count(DISTINCT account_id) DESC
		 LIMIT $3`,
		since, unavailable, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []models.FingerprintCluster
	for rows.Next() {
		var c models.FingerprintCluster
		if err := rows.Scan(&c.HardwareSignature, &c.AccountIDs, &c.AccountCount, &c.IPCount); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}
