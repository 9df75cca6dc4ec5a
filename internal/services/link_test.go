package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/link-engine/internal/models"
)

// memLinkStore mirrors the database supersession semantics in memory
type memLinkStore struct {
	mu    sync.Mutex
	links []*models.AccessLink

	failIssues int
}

func (s *memLinkStore) IssueSuperseding(ctx context.Context, link *models.AccessLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failIssues > 0 {
		s.failIssues--
		return models.ErrUnavailable
	}

	for _, l := range s.links {
		if l.FileID == link.FileID && l.DeviceID == link.DeviceID && l.RevokedAt == nil {
			at := link.CreatedAt
			l.RevokedAt = &at
		}
	}
	cp := *link
	s.links = append(s.links, &cp)
	return nil
}

func (s *memLinkStore) FindByHash(ctx context.Context, hashID string) (*models.AccessLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.HashID == hashID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memLinkStore) ListByFile(ctx context.Context, fileID int64) ([]models.AccessLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AccessLink
	for i := len(s.links) - 1; i >= 0; i-- {
		if s.links[i].FileID == fileID {
			out = append(out, *s.links[i])
		}
	}
	return out, nil
}

func (s *memLinkStore) RevokeByHash(ctx context.Context, hashID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.HashID == hashID {
			if l.RevokedAt == nil {
				l.RevokedAt = &at
			}
			return nil
		}
	}
	return models.ErrNotFound
}

// memFileStore holds file rows in memory
type memFileStore struct {
	mu     sync.Mutex
	nextID int64
	files  map[int64]*models.File
}

func newMemFileStore() *memFileStore {
	return &memFileStore{nextID: 1, files: make(map[int64]*models.File)}
}

func (s *memFileStore) Create(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file.ID = s.nextID
	file.CreatedAt = time.Now().UTC()
	s.nextID++
	cp := *file
	s.files[file.ID] = &cp
	return nil
}

func (s *memFileStore) Get(ctx context.Context, id int64) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func newTestLinkService(t *testing.T, store *memLinkStore, expiry time.Duration) (*LinkService, int64) {
	t.Helper()
	fileStore := newMemFileStore()
	files, err := NewFileService(fileStore, 16)
	require.NoError(t, err)

	file := &models.File{BlobRef: "blob-1", Filename: "clip.mp4", FileType: "video", MimeType: "video/mp4", SizeBytes: 1024}
	require.NoError(t, files.RegisterFile(context.Background(), file))

	return NewLinkService(store, files, expiry), file.ID
}

func TestNewHashID(t *testing.T) {
	a, err := NewHashID()
	require.NoError(t, err)
	b, err := NewHashID()
	require.NoError(t, err)

	assert.Len(t, a, HashIDLength)
	assert.Regexp(t, "^[0-9a-f]+$", a)
	assert.NotEqual(t, a, b)
}

func TestIssueLinkSupersedesPrior(t *testing.T) {
	store := &memLinkStore{}
	svc, fileID := newTestLinkService(t, store, time.Hour)
	ctx := context.Background()

	first, err := svc.IssueLink(ctx, fileID, "device-1")
	require.NoError(t, err)

	second, err := svc.IssueLink(ctx, fileID, "device-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.HashID, second.HashID)

	// old token denied, new token resolves
	_, err = svc.ResolveLink(ctx, first.HashID)
	assert.ErrorIs(t, err, models.ErrRevoked)

	resolved, err := svc.ResolveLink(ctx, second.HashID)
	require.NoError(t, err)
	assert.Equal(t, second.HashID, resolved.HashID)
}

func TestIssueLinkPerDeviceIsolation(t *testing.T) {
	store := &memLinkStore{}
	svc, fileID := newTestLinkService(t, store, time.Hour)
	ctx := context.Background()

	a, err := svc.IssueLink(ctx, fileID, "device-a")
	require.NoError(t, err)
	_, err = svc.IssueLink(ctx, fileID, "device-b")
	require.NoError(t, err)

	// issuing for device-b leaves device-a's link active
	_, err = svc.ResolveLink(ctx, a.HashID)
	assert.NoError(t, err)
}

func TestIssueLinkUnknownFile(t *testing.T) {
	store := &memLinkStore{}
	svc, _ := newTestLinkService(t, store, time.Hour)

	_, err := svc.IssueLink(context.Background(), 9999, "device-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIssueLinkRetriesOnConflict(t *testing.T) {
	store := &memLinkStore{failIssues: 1}
	svc, fileID := newTestLinkService(t, store, time.Hour)

	link, err := svc.IssueLink(context.Background(), fileID, "device-1")
	require.NoError(t, err)
	assert.Len(t, link.HashID, HashIDLength)
}

func TestIssueLinkSurfacesPersistentConflict(t *testing.T) {
	store := &memLinkStore{failIssues: 2}
	svc, fileID := newTestLinkService(t, store, time.Hour)

	_, err := svc.IssueLink(context.Background(), fileID, "device-1")
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

// contentiousLinkStore fails overlapping issuances with ErrUnavailable
// the way the active-link unique index rejects the losing transaction
type contentiousLinkStore struct {
	memLinkStore
	inFlight atomic.Bool
}

func (s *contentiousLinkStore) IssueSuperseding(ctx context.Context, link *models.AccessLink) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return models.ErrUnavailable
	}
	defer s.inFlight.Store(false)
	time.Sleep(time.Millisecond)
	return s.memLinkStore.IssueSuperseding(ctx, link)
}

func TestIssueLinkConcurrentSingleActive(t *testing.T) {
	store := &contentiousLinkStore{}
	fileStore := newMemFileStore()
	files, err := NewFileService(fileStore, 16)
	require.NoError(t, err)
	file := &models.File{BlobRef: "blob-1", Filename: "clip.mp4", FileType: "video", MimeType: "video/mp4", SizeBytes: 1024}
	require.NoError(t, files.RegisterFile(context.Background(), file))
	svc := NewLinkService(store, files, time.Hour)

	const workers = 16
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.IssueLink(context.Background(), file.ID, "device-1")
		}(i)
	}
	wg.Wait()

	issued := 0
	for _, err := range errs {
		if err == nil {
			issued++
			continue
		}
		// a lost race is the only acceptable failure
		assert.ErrorIs(t, err, models.ErrUnavailable)
	}
	require.Greater(t, issued, 0)

	store.mu.Lock()
	defer store.mu.Unlock()
	active := 0
	for _, l := range store.links {
		if l.RevokedAt == nil {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Len(t, store.links, issued)
}

func TestResolveLinkDenials(t *testing.T) {
	store := &memLinkStore{}
	svc, fileID := newTestLinkService(t, store, time.Millisecond)
	ctx := context.Background()

	expired, err := svc.IssueLink(ctx, fileID, "device-exp")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name    string
		hashID  string
		wantErr error
	}{
		{"unknown token", "00000000000000000000000000000000", models.ErrNotFound},
		{"malformed token", "short", models.ErrNotFound},
		{"expired token", expired.HashID, models.ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ResolveLink(ctx, tt.hashID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, models.Denied(err))
		})
	}
}

func TestRevokeLinkIdempotent(t *testing.T) {
	store := &memLinkStore{}
	svc, fileID := newTestLinkService(t, store, time.Hour)
	ctx := context.Background()

	link, err := svc.IssueLink(ctx, fileID, "device-1")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeLink(ctx, link.HashID))
	require.NoError(t, svc.RevokeLink(ctx, link.HashID))

	_, err = svc.ResolveLink(ctx, link.HashID)
	assert.ErrorIs(t, err, models.ErrRevoked)

	assert.ErrorIs(t, svc.RevokeLink(ctx, "ffffffffffffffffffffffffffffffff"), models.ErrNotFound)
}

func TestListLinksNewestFirst(t *testing.T) {
	store := &memLinkStore{}
	svc, fileID := newTestLinkService(t, store, time.Hour)
	ctx := context.Background()

	first, err := svc.IssueLink(ctx, fileID, "device-1")
	require.NoError(t, err)
	second, err := svc.IssueLink(ctx, fileID, "device-1")
	require.NoError(t, err)

	links, err := svc.ListLinks(ctx, fileID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, second.HashID, links[0].HashID)
	assert.Equal(t, first.HashID, links[1].HashID)
	assert.NotNil(t, links[1].RevokedAt)
}
