// Package pgtable provides a PostgreSQL metacache.Table built on bun.
//
// Rows live in the bucketfs_file table:
//
//	uri       text primary key
//	filesize  bigint not null
//	timestamp bigint not null   -- unix seconds
//	dir       boolean not null
//	version   text              -- nullable
package pgtable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/grokify/bucketfs/metacache"
)

// deleteBatch caps the URIs bound into one DELETE statement.
const deleteBatch = 500

// likeEscape is the LIKE escape character.
const likeEscape = "!"

type fileModel struct {
	bun.BaseModel `bun:"table:bucketfs_file"`

	URI       string         `bun:"uri,pk"`
	Filesize  int64          `bun:"filesize,notnull"`
	Timestamp int64          `bun:"timestamp,notnull"`
	Dir       bool           `bun:"dir,notnull"`
	Version   sql.NullString `bun:"version"`
}

func toModel(m metacache.FileMetadata) *fileModel {
	return &fileModel{
		URI:       m.URI,
		Filesize:  m.Size,
		Timestamp: m.Timestamp.Unix(),
		Dir:       m.IsDir,
		Version:   sql.NullString{String: m.Version, Valid: m.Version != ""},
	}
}

func (f *fileModel) metadata() metacache.FileMetadata {
	return metacache.FileMetadata{
		URI:       f.URI,
		Size:      f.Filesize,
		Timestamp: time.Unix(f.Timestamp, 0).UTC(),
		IsDir:     f.Dir,
		Version:   f.Version.String,
	}
}

// Table is a PostgreSQL-backed metacache.Table.
type Table struct {
	db *bun.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Table, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgtable: open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pgtable: ping database: %w", err)
	}

	return New(sqlDB), nil
}

// New wraps an existing *sql.DB.
func New(sqlDB *sql.DB) *Table {
	return &Table{db: bun.NewDB(sqlDB, pgdialect.New())}
}

// DB returns the underlying bun database.
func (t *Table) DB() *bun.DB {
	return t.db
}

// CreateSchema creates the table and its prefix index if they do not exist.
func (t *Table) CreateSchema(ctx context.Context) error {
	if _, err := t.db.NewCreateTable().
		Model((*fileModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("pgtable: create table: %w", err)
	}

	// text_pattern_ops lets LIKE 'prefix%' use the index under any collation
	if _, err := t.db.NewCreateIndex().
		Model((*fileModel)(nil)).
		Index("bucketfs_file_uri_prefix_idx").
		IfNotExists().
		ColumnExpr("uri text_pattern_ops").
		Exec(ctx); err != nil {
		return fmt.Errorf("pgtable: create index: %w", err)
	}
	return nil
}

// Get implements metacache.Table.
func (t *Table) Get(ctx context.Context, uri string) (metacache.FileMetadata, error) {
	var row fileModel
	err := t.db.NewSelect().
		Model(&row).
		Where("uri = ?", uri).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return metacache.FileMetadata{}, metacache.ErrNotFound
	}
	if err != nil {
		return metacache.FileMetadata{}, err
	}
	return row.metadata(), nil
}

// Upsert implements metacache.Table.
func (t *Table) Upsert(ctx context.Context, m metacache.FileMetadata) error {
	return upsert(ctx, t.db, m)
}

func upsert(ctx context.Context, idb bun.IDB, m metacache.FileMetadata) error {
	_, err := idb.NewInsert().
		Model(toModel(m)).
		On("CONFLICT (uri) DO UPDATE").
		Set("filesize = EXCLUDED.filesize").
		Set("timestamp = EXCLUDED.timestamp").
		Set("dir = EXCLUDED.dir").
		Set("version = EXCLUDED.version").
		Exec(ctx)
	return err
}

// Delete implements metacache.Table. All batches run in one transaction.
func (t *Table) Delete(ctx context.Context, uris ...string) error {
	if len(uris) == 0 {
		return nil
	}
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(uris); start += deleteBatch {
			end := min(start+deleteBatch, len(uris))
			if _, err := tx.NewDelete().
				Model((*fileModel)(nil)).
				Where("uri IN (?)", bun.In(uris[start:end])).
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replace implements metacache.Table.
func (t *Table) Replace(ctx context.Context, oldURI string, m metacache.FileMetadata) error {
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*fileModel)(nil)).
			Where("uri = ?", oldURI).
			Exec(ctx); err != nil {
			return err
		}
		return upsert(ctx, tx, m)
	})
}

// DeleteEmpty implements metacache.Table. The descendant check runs inside
// the DELETE statement.
func (t *Table) DeleteEmpty(ctx context.Context, uri, prefix string) error {
	return t.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		descendants := tx.NewSelect().
			TableExpr("bucketfs_file AS d").
			ColumnExpr("1").
			Where("d.uri LIKE ? ESCAPE '"+likeEscape+"'", escapeLike(prefix)+"%").
			Where("d.uri <> ?", prefix)

		res, err := tx.NewDelete().
			Model((*fileModel)(nil)).
			Where("uri = ?", uri).
			Where("NOT EXISTS (?)", descendants).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}

		exists, err := tx.NewSelect().
			Model((*fileModel)(nil)).
			Where("uri = ?", uri).
			Exists(ctx)
		switch {
		case err != nil:
			return err
		case exists:
			return metacache.ErrDirectoryNotEmpty
		default:
			return metacache.ErrNotFound
		}
	})
}

// HasPrefix implements metacache.Table.
func (t *Table) HasPrefix(ctx context.Context, prefix string) (bool, error) {
	return t.db.NewSelect().
		Model((*fileModel)(nil)).
		Where("uri LIKE ? ESCAPE '"+likeEscape+"'", escapeLike(prefix)+"%").
		Where("uri <> ?", prefix).
		Exists(ctx)
}

// Children implements metacache.Table. Rows stream from the database in URI
// order; every range runs a fresh query.
func (t *Table) Children(ctx context.Context, prefix string) iter.Seq2[metacache.FileMetadata, error] {
	return func(yield func(metacache.FileMetadata, error) bool) {
		escaped := escapeLike(prefix)
		rows, err := t.db.NewSelect().
			Model((*fileModel)(nil)).
			Where("uri LIKE ? ESCAPE '"+likeEscape+"'", escaped+"%").
			Where("uri NOT LIKE ? ESCAPE '"+likeEscape+"'", escaped+"%/%").
			Where("uri <> ?", prefix).
			Order("uri ASC").
			Rows(ctx)
		if err != nil {
			yield(metacache.FileMetadata{}, fmt.Errorf("pgtable: listing children: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var row fileModel
			if err := t.db.ScanRow(ctx, rows, &row); err != nil {
				yield(metacache.FileMetadata{}, fmt.Errorf("pgtable: scanning child: %w", err))
				return
			}
			if !yield(row.metadata(), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(metacache.FileMetadata{}, fmt.Errorf("pgtable: listing children: %w", err))
		}
	}
}

// Close implements metacache.Table.
func (t *Table) Close() error {
	return t.db.Close()
}

// escapeLike escapes LIKE wildcards so prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	)
	return r.Replace(s)
}

// Ensure Table implements metacache.Table
var _ metacache.Table = (*Table)(nil)
