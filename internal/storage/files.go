package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mediavault/link-engine/internal/models"
)

// FileStore persists file records registered by the ingestion pipeline
type FileStore struct {
	db *DB
}

// NewFileStore creates a new file store
func NewFileStore(db *DB) *FileStore {
	return &FileStore{db: db}
}

// Create inserts a new file record and assigns its ID
func (s *FileStore) Create(ctx context.Context, file *models.File) error {
	err := s.db.Pool.QueryRow(ctx,
		`INSERT INTO files (blob_ref, filename, file_type, mime_type, size_bytes, duration_seconds, premium)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		file.BlobRef, file.Filename, file.FileType, file.MimeType,
		file.SizeBytes, file.DurationSeconds, file.Premium).
		Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// Get retrieves a file by ID
func (s *FileStore) Get(ctx context.Context, fileID int64) (*models.File, error) {
	var f models.File
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, blob_ref, filename, file_type, mime_type, size_bytes, duration_seconds, premium, created_at
		 FROM files WHERE id = $1`,
		fileID).Scan(&f.ID, &f.BlobRef, &f.Filename, &f.FileType, &f.MimeType,
		&f.SizeBytes, &f.DurationSeconds, &f.Premium, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}
