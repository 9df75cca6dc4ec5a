package services

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mediavault/link-engine/internal/models"
)

// FileStore persists file metadata
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	Get(ctx context.Context, id int64) (*models.File, error)
}

// FileService manages file metadata with a read-through LRU cache.
// File rows are immutable after ingestion, so cached entries never go
// stale.
type FileService struct {
	store FileStore
	cache *lru.Cache[int64, *models.File]
}

// NewFileService creates a new file service
func NewFileService(store FileStore, cacheSize int) (*FileService, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[int64, *models.File](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}
	return &FileService{store: store, cache: cache}, nil
}

// RegisterFile records a newly ingested file's metadata
func (s *FileService) RegisterFile(ctx context.Context, file *models.File) error {
	if err := s.store.Create(ctx, file); err != nil {
		return err
	}
	s.cache.Add(file.ID, file)
	return nil
}

// GetFile fetches file metadata, from cache when possible
func (s *FileService) GetFile(ctx context.Context, id int64) (*models.File, error) {
	if file, ok := s.cache.Get(id); ok {
		return file, nil
	}
	file, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, file)
	return file, nil
}
