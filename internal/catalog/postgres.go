package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts rec or refreshes the mutable columns of an existing row.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO uploads (id, owner_key, upload_offset, upload_length, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			owner_key = EXCLUDED.owner_key,
			upload_offset = EXCLUDED.upload_offset,
			upload_length = EXCLUDED.upload_length,
			updated_at = EXCLUDED.updated_at`

	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerKey, rec.Offset, nullInt64(rec.Length), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// Get returns the record of id or ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `SELECT id, owner_key, upload_offset, upload_length, created_at, updated_at FROM uploads
		WHERE id=$1`

	rec, err := scanPostgres(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog record %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return rec, nil
}

// Delete removes the record of id; a missing row is fine.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM uploads`); err != nil {
		return fmt.Errorf("failed to clear uploads: %w", err)
	}
	return nil
}

// ListByOwner returns the uploads of ownerKey, oldest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerKey string) ([]*Record, error) {
	query := `SELECT id, owner_key, upload_offset, upload_length, created_at, updated_at FROM uploads
		WHERE owner_key=$1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to select uploads: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanPostgres(rows)
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

func scanPostgres(s scanner) (*Record, error) {
	var (
		rec    Record
		length sql.NullInt64
	)
	if err := s.Scan(&rec.ID, &rec.OwnerKey, &rec.Offset, &length, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Length = int64Ptr(length)
	return &rec, nil
}
