package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/catalog/migrations"
	"github.com/dmitrijs2005/tusstore/internal/dbx"
	"github.com/dmitrijs2005/tusstore/internal/upload"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Supported catalog drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Catalog owns the catalog database and vends repositories bound to it.
type Catalog struct {
	DB      *sql.DB
	newRepo func(dbx.DBTX) Repository
}

// gooseUp is a seam for testing migrations without a database server.
var gooseUp = func(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

// Open connects to the catalog database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Catalog, error) {
	var (
		sqlDriver, dialect, dir string
		newRepo                 func(dbx.DBTX) Repository
	)

	switch driver {
	case DriverSQLite:
		sqlDriver, dialect, dir = "sqlite", "sqlite3", "sqlite"
		newRepo = func(db dbx.DBTX) Repository { return NewSQLiteRepository(db) }
	case DriverPostgres:
		sqlDriver, dialect, dir = "pgx", "postgres", "postgres"
		newRepo = func(db dbx.DBTX) Repository { return NewPostgresRepository(db) }
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}

	if err := gooseUp(ctx, db, dialect, dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	return &Catalog{DB: db, newRepo: newRepo}, nil
}

// Uploads returns a repository bound to the catalog database.
func (c *Catalog) Uploads() Repository {
	return c.newRepo(c.DB)
}

// Reindex replaces the catalog content with infos in one transaction.
func (c *Catalog) Reindex(ctx context.Context, infos []*upload.Info) error {
	now := time.Now().UTC()
	return dbx.WithTx(ctx, c.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := c.newRepo(tx)
		if err := repo.DeleteAll(ctx); err != nil {
			return err
		}
		for _, info := range infos {
			if err := repo.Upsert(ctx, RecordFromInfo(info, now)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Catalog) Close() error {
	return c.DB.Close()
}
