package models

import (
	"time"

	"github.com/google/uuid"
)

// File represents an immutable stored file. Owned by the ingestion
// pipeline; read-only to the link engine.
type File struct {
	ID              int64     `db:"id" json:"id"`
	BlobRef         string    `db:"blob_ref" json:"-"`
	Filename        string    `db:"filename" json:"filename"`
	FileType        string    `db:"file_type" json:"file_type"`
	MimeType        string    `db:"mime_type" json:"mime_type"`
	SizeBytes       int64     `db:"size_bytes" json:"size_bytes"`
	DurationSeconds *int      `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Premium         bool      `db:"premium" json:"premium"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// AccessLink maps a (file, device) pair to an opaque access token.
// At most one non-revoked link exists per (file_id, device_id); issuing
// a new one revokes the prior one in the same transaction.
type AccessLink struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	FileID    int64      `db:"file_id" json:"file_id"`
	DeviceID  string     `db:"device_id" json:"device_id"`
	HashID    string     `db:"hash_id" json:"hash_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Active reports whether the link is neither revoked nor expired at t.
func (l *AccessLink) Active(t time.Time) bool {
	return l.RevokedAt == nil && t.Before(l.ExpiresAt)
}

// DeviceFingerprint stores the latest resolved fingerprint for a device.
// HardwareSignature is the portion stable across network and reinstall
// churn; soft signals may drift and are overwritten on each sighting.
type DeviceFingerprint struct {
	DeviceID          string    `db:"device_id" json:"device_id"`
	HardwareSignature string    `db:"hardware_signature" json:"hardware_signature"`
	CompositeHash     string    `db:"composite_hash" json:"composite_hash"`
	Confidence        string    `db:"confidence" json:"confidence"`
	ScreenResolution  string    `db:"screen_resolution" json:"screen_resolution"`
	TimezoneName      string    `db:"timezone_name" json:"timezone_name"`
	Language          string    `db:"language" json:"language"`
	UserAgent         string    `db:"user_agent" json:"user_agent"`
	FirstSeen         time.Time `db:"first_seen" json:"first_seen"`
	LastSeen          time.Time `db:"last_seen" json:"last_seen"`
}

// FingerprintObservation records one sighting of a device, optionally
// tied to an account. Feeds the cross-IP multi-account cluster report.
type FingerprintObservation struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DeviceID          string    `db:"device_id" json:"device_id"`
	AccountID         string    `db:"account_id" json:"account_id"`
	IPAddress         string    `db:"ip_address" json:"ip_address"`
	HardwareSignature string    `db:"hardware_signature" json:"hardware_signature"`
	ObservedAt        time.Time `db:"observed_at" json:"observed_at"`
}

// FingerprintCluster is a derived report row: accounts sharing one
// hardware signature across multiple IPs. Advisory only, never used
// for automatic denial.
type FingerprintCluster struct {
	HardwareSignature string   `json:"hardware_signature"`
	AccountIDs        []string `json:"account_ids"`
	AccountCount      int      `json:"account_count"`
	IPCount           int      `json:"ip_count"`
}

// ImpressionRecord caps rewardable impressions at one per device per
// link per day via a unique (device_id, hash_id, impression_date) key.
type ImpressionRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DeviceID       string    `db:"device_id" json:"device_id"`
	HashID         string    `db:"hash_id" json:"hash_id"`
	ImpressionDate time.Time `db:"impression_date" json:"impression_date"`
	Count          int       `db:"count" json:"count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// EndpointKey is a legacy admin-managed API key for a named endpoint.
// The key itself is stored bcrypt-hashed.
type EndpointKey struct {
	ID           uuid.UUID `db:"id" json:"id"`
	EndpointName string    `db:"endpoint_name" json:"endpoint_name"`
	KeyHash      string    `db:"key_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AccessLog records one authorization attempt against a link
type AccessLog struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FileID    int64     `db:"file_id" json:"file_id"`
	HashID    string    `db:"hash_id" json:"hash_id"`
	ClientIP  string    `db:"client_ip" json:"client_ip"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	Success   bool      `db:"success" json:"success"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
