package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/link-engine/internal/models"
)

type memKeyStore struct {
	mu   sync.Mutex
	keys []models.EndpointKey
}

func (s *memKeyStore) Create(ctx context.Context, key *models.EndpointKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, *key)
	return nil
}

func (s *memKeyStore) ActiveHashes(ctx context.Context, endpointName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, k := range s.keys {
		if k.EndpointName == endpointName && k.IsActive {
			out = append(out, k.KeyHash)
		}
	}
	return out, nil
}

func (s *memKeyStore) List(ctx context.Context) ([]models.EndpointKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EndpointKey(nil), s.keys...), nil
}

func TestCreateAndVerifyKey(t *testing.T) {
	svc := NewKeyService(&memKeyStore{})
	ctx := context.Background()

	plaintext, key, err := svc.CreateKey(ctx, "tracking")
	require.NoError(t, err)
	assert.Len(t, plaintext, HashIDLength)
	assert.Equal(t, "tracking", key.EndpointName)
	assert.NotEqual(t, plaintext, key.KeyHash)

	found, ok, err := svc.Verify(ctx, "tracking", plaintext)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, ok)

	found, ok, err = svc.Verify(ctx, "tracking", "wrong-key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, ok)

	// endpoint with no stored keys reports not found so callers can
	// fall through
	found, _, err = svc.Verify(ctx, "links", plaintext)
	require.NoError(t, err)
	assert.False(t, found)
}
