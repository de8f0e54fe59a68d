// Package catalog keeps a queryable index of uploads next to the disk storage.
// The disk records stay the source of truth; the catalog can always be rebuilt
// from them with Reindex.
package catalog

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// Record is the catalog row of one upload.
type Record struct {
	ID        string
	OwnerKey  string
	Offset    int64
	Length    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordFromInfo builds the catalog row for info as of now.
func RecordFromInfo(info *upload.Info, now time.Time) *Record {
	r := &Record{
		ID:        info.ID,
		OwnerKey:  info.OwnerKey,
		Offset:    info.Offset,
		CreatedAt: info.CreatedAt,
		UpdatedAt: now,
	}
	if info.Length != nil {
		r.Length = upload.Int64(*info.Length)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	return r
}

// Repository stores catalog records.
type Repository interface {
	Upsert(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	ListByOwner(ctx context.Context, ownerKey string) ([]*Record, error)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return upload.Int64(v.Int64)
}
