package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/dbx"
)

// SQLiteRepository stores timestamps as unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, rec *Record) error {
	query := `INSERT INTO uploads (id, owner_key, upload_offset, upload_length, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_key = excluded.owner_key,
			upload_offset = excluded.upload_offset,
			upload_length = excluded.upload_length,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.OwnerKey, rec.Offset, nullInt64(rec.Length),
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT id, owner_key, upload_offset, upload_length, created_at, updated_at FROM uploads WHERE id=?`

	rec, err := scanSQLite(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog record %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id=?`, id); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads`); err != nil {
		return fmt.Errorf("failed to clear uploads: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerKey string) ([]*Record, error) {
	query := `SELECT id, owner_key, upload_offset, upload_length, created_at, updated_at FROM uploads
		WHERE owner_key=? ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(s scanner) (*Record, error) {
	var (
		rec              Record
		length           sql.NullInt64
		created, updated int64
	)
	if err := s.Scan(&rec.ID, &rec.OwnerKey, &rec.Offset, &length, &created, &updated); err != nil {
		return nil, err
	}
	rec.Length = int64Ptr(length)
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()
	return &rec, nil
}
