package catalog

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/logging"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// TrackingStorage mirrors the lifecycle of uploads handled by the wrapped
// StorageService into a catalog Repository. Catalog failures are logged and
// never change the result of the storage call.
type TrackingStorage struct {
	upload.StorageService

	repo Repository
	log  logging.Logger
	now  func() time.Time
}

var _ upload.StorageService = (*TrackingStorage)(nil)

func NewTrackingStorage(inner upload.StorageService, repo Repository, log logging.Logger) *TrackingStorage {
	if log == nil {
		log = logging.Nop()
	}
	return &TrackingStorage{
		StorageService: inner,
		repo:           repo,
		log:            log.With("component", "catalog"),
		now:            time.Now,
	}
}

func (t *TrackingStorage) Create(ctx context.Context, info *upload.Info, ownerKey string) (*upload.Info, error) {
	out, err := t.StorageService.Create(ctx, info, ownerKey)
	if err != nil {
		return out, err
	}
	t.track(ctx, out)
	return out, nil
}

func (t *TrackingStorage) Update(ctx context.Context, info *upload.Info) error {
	if err := t.StorageService.Update(ctx, info); err != nil {
		return err
	}
	t.track(ctx, info)
	return nil
}

// Append records the resulting offset. A failed append is recorded only when
// storage recovered and persisted the real offset; otherwise the returned
// info may still carry the offset the caller claimed.
func (t *TrackingStorage) Append(ctx context.Context, info *upload.Info, src io.Reader) (*upload.Info, error) {
	out, err := t.StorageService.Append(ctx, info, src)
	var recovered *upload.RecoveredError
	if err != nil && !errors.As(err, &recovered) {
		return out, err
	}
	t.track(ctx, out)
	return out, err
}

func (t *TrackingStorage) RemoveLastBytes(ctx context.Context, info *upload.Info, n int64) error {
	if err := t.StorageService.RemoveLastBytes(ctx, info, n); err != nil {
		return err
	}
	t.track(ctx, info)
	return nil
}

func (t *TrackingStorage) Terminate(ctx context.Context, info *upload.Info) error {
	if err := t.StorageService.Terminate(ctx, info); err != nil {
		return err
	}
	if info == nil {
		return nil
	}
	if err := t.repo.Delete(ctx, info.ID); err != nil {
		t.log.Warn(ctx, "failed to drop catalog record", "id", info.ID, "error", err)
	}
	return nil
}

func (t *TrackingStorage) track(ctx context.Context, info *upload.Info) {
	if info == nil {
		return
	}
	if err := t.repo.Upsert(ctx, RecordFromInfo(info, t.now().UTC())); err != nil {
		t.log.Warn(ctx, "failed to update catalog record", "id", info.ID, "error", err)
	}
}
