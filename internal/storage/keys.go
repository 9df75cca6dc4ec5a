package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediavault/link-engine/internal/models"
)

// EndpointKeyStore persists legacy admin-managed endpoint API keys
type EndpointKeyStore struct {
	db *DB
}

// NewEndpointKeyStore creates a new endpoint key store
func NewEndpointKeyStore(db *DB) *EndpointKeyStore {
	return &EndpointKeyStore{db: db}
}

// Create stores a new endpoint key (hash only, never the raw key)
func (s *EndpointKeyStore) Create(ctx context.Context, key *models.EndpointKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO endpoint_keys (id, endpoint_name, key_hash, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		key.ID, key.EndpointName, key.KeyHash, key.IsActive).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create endpoint key: %w", err)
	}
	return nil
}

// ActiveHashes returns the hashes of all active keys for an endpoint
func (s *EndpointKeyStore) ActiveHashes(ctx context.Context, endpointName string) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT key_hash FROM endpoint_keys
		 WHERE endpoint_name = $1 AND is_active = TRUE`,
		endpointName)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint keys: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// List returns all endpoint keys for the admin surface
func (s *EndpointKeyStore) List(ctx context.Context) ([]models.EndpointKey, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, endpoint_name, key_hash, is_active, created_at
		 FROM endpoint_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoint keys: %w", err)
	}
	defer rows.Close()

	var keys []models.EndpointKey
	for rows.Next() {
		var k models.EndpointKey
		if err := rows.Scan(&k.ID, &k.EndpointName, &k.KeyHash, &k.IsActive, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
