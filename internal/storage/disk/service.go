// Package disk stores resumable uploads on the local filesystem.
//
// Every upload owns a directory <root>/uploads/<id> holding an "info" file
// (the versioned metadata record) and a "data" file (the received bytes). The
// offset stored in info equals the size of data once a call returns, whether
// the call succeeded or not. The one exception is an append whose bytes were
// written but whose record could not be saved; see Service.Append.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/filex"
	"github.com/dmitrijs2005/tusstore/internal/logging"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// Service implements upload.StorageService on top of a directory tree.
type Service struct {
	layout layout
	ids    upload.IDFactory
	log    logging.Logger

	maxUploadSize atomic.Int64

	// allocMu serialises id allocation.
	allocMu       sync.Mutex
	maxIDAttempts int

	now func() time.Time
}

var _ upload.StorageService = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithMaxUploadSize caps the number of bytes any upload may hold; n <= 0 means no cap.
func WithMaxUploadSize(n int64) Option {
	return func(s *Service) { s.SetMaxUploadSize(n) }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMaxIDAttempts bounds how many candidate ids Create tries.
func WithMaxIDAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxIDAttempts = n
		}
	}
}

// NewService creates the uploads directory under storagePath if needed.
func NewService(storagePath string, ids upload.IDFactory, opts ...Option) (*Service, error) {
	if ids == nil {
		return nil, errors.New("id factory is required")
	}

	root, err := filex.EnsureDir(filepath.Join(storagePath, uploadSubDirectory))
	if err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	s := &Service{
		layout:        layout{root: root},
		ids:           ids,
		log:           logging.Nop(),
		maxIDAttempts: 16,
		now:           time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "disk_storage")
	return s, nil
}

// Root returns the directory holding the upload directories.
func (s *Service) Root() string {
	return s.layout.root
}

func (s *Service) SetMaxUploadSize(n int64) {
	if n < 0 {
		n = 0
	}
	s.maxUploadSize.Store(n)
}

func (s *Service) MaxUploadSize() int64 {
	return s.maxUploadSize.Load()
}

func (s *Service) GetUploadURI() string {
	return s.ids.UploadURI()
}

// GetUploadInfo loads the upload addressed by uri. A different owner key is
// reported as ErrorNotFound, so callers cannot probe foreign uploads.
func (s *Service) GetUploadInfo(ctx context.Context, uri, ownerKey string) (*upload.Info, error) {
	id, err := s.ids.ReadUploadID(uri)
	if err != nil {
		return nil, err
	}
	info, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if info.OwnerKey != ownerKey {
		return nil, fmt.Errorf("upload %s for owner %q: %w", id, ownerKey, common.ErrorNotFound)
	}
	return info, nil
}

// Create allocates an id, creates the upload directory with an empty data
// file and persists info with offset 0 and the given owner.
func (s *Service) Create(ctx context.Context, info *upload.Info, ownerKey string) (*upload.Info, error) {
	if info == nil {
		info = &upload.Info{}
	}

	id, dir, err := s.allocate()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, dataFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		s.discard(ctx, id, dir)
		return nil, fmt.Errorf("create data file of %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		s.discard(ctx, id, dir)
		return nil, fmt.Errorf("close data file of %s: %w", id, err)
	}

	info.ID = id
	info.Offset = 0
	info.OwnerKey = ownerKey
	info.CreatedAt = s.now().UTC()
	if info.UploadType == "" {
		info.UploadType = upload.TypeRegular
	}

	if err := s.save(info); err != nil {
		s.discard(ctx, id, dir)
		return nil, err
	}

	s.log.Info(ctx, "upload created", "id", id, "owner", ownerKey)
	return info, nil
}

func (s *Service) discard(ctx context.Context, id, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn(ctx, "failed to remove half-created upload", "id", id, "error", err)
	}
}

// Update rewrites the whole metadata record of info.
func (s *Service) Update(ctx context.Context, info *upload.Info) error {
	if info == nil {
		return nil
	}
	return s.save(info)
}

// List loads every upload found under the root. Uploads removed while listing
// and unreadable records are skipped; the latter are logged.
func (s *Service) List(ctx context.Context) ([]*upload.Info, error) {
	ids, err := s.layout.ids()
	if err != nil {
		return nil, err
	}

	infos := make([]*upload.Info, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := s.load(id)
		switch {
		case err == nil:
			infos = append(infos, info)
		case errors.Is(err, common.ErrorNotFound):
		case errors.Is(err, common.ErrorIncorrectMetadata):
			s.log.Warn(ctx, "skipping upload with unreadable metadata", "id", id, "error", err)
		default:
			return nil, err
		}
	}
	return infos, nil
}

// CleanupExpiredUploads does nothing: expiry is handled outside the storage engine.
func (s *Service) CleanupExpiredUploads(ctx context.Context, locks upload.LockingService) error {
	return nil
}

// GetUploadedBytes opens the data file of the upload addressed by uri. The
// owner key is not checked here; combine with GetUploadInfo for that.
func (s *Service) GetUploadedBytes(ctx context.Context, uri, ownerKey string) (io.ReadCloser, error) {
	id, err := s.ids.ReadUploadID(uri)
	if err != nil {
		return nil, err
	}
	path, err := s.layout.dataPath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notFoundIfMissing(err, id)
	}
	return f, nil
}
