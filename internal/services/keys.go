package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mediavault/link-engine/internal/models"
)

// EndpointKeyStore persists bcrypt-hashed endpoint API keys
type EndpointKeyStore interface {
	Create(ctx context.Context, key *models.EndpointKey) error
	ActiveHashes(ctx context.Context, endpointName string) ([]string, error)
	List(ctx context.Context) ([]models.EndpointKey, error)
}

// KeyService manages the legacy database-backed endpoint key tier.
// Config tokens take precedence over these keys; they exist so deployed
// clients keep working while tokens migrate into config.
type KeyService struct {
	store EndpointKeyStore
}

// NewKeyService creates a new key service
func NewKeyService(store EndpointKeyStore) *KeyService {
	return &KeyService{store: store}
}

// CreateKey mints a fresh random key for an endpoint and stores only
// its bcrypt hash. The plaintext is returned exactly once.
func (s *KeyService) CreateKey(ctx context.Context, endpointName string) (string, *models.EndpointKey, error) {
	plaintext, err := NewHashID()
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash key: %w", err)
	}
	key := &models.EndpointKey{
		ID:           uuid.New(),
		EndpointName: endpointName,
		KeyHash:      string(hash),
		IsActive:     true,
	}
	if err := s.store.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return plaintext, key, nil
}

// Verify checks a presented key against every active hash for the
// endpoint. found reports whether the store holds any active key for
// the endpoint at all, so callers can fall through when it does not.
func (s *KeyService) Verify(ctx context.Context, endpointName, presented string) (found, ok bool, err error) {
	hashes, err := s.store.ActiveHashes(ctx, endpointName)
	if err != nil {
		return false, false, err
	}
	if len(hashes) == 0 {
		return false, false, nil
	}
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(presented)) == nil {
			return true, true, nil
		}
	}
	return true, false, nil
}

// ListKeys returns all endpoint keys, hashes omitted from serialization
func (s *KeyService) ListKeys(ctx context.Context) ([]models.EndpointKey, error) {
	return s.store.List(ctx)
}
