// Package sqlite is the SQLite storage backend (modernc.org/sqlite, pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/storage"
)

// batchRows keeps each INSERT well under SQLite's bound-parameter limit.
const batchRows = 150

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, table: cfg.TableName()}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTable creates the records table and its row_hash constraint.
func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// SaveRecords inserts the records in one transaction using INSERT OR IGNORE,
// which skips rows whose row_hash is already stored.
func (r *Repo) SaveRecords(ctx context.Context, records []directory.Record) (int64, error) {
	rows, err := storage.ToRows(records)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	for _, batch := range storage.Chunk(rows, batchRows) {
		q, args := buildInsertSQL(r.table, batch)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", r.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// LastPage returns MAX(page) of the table.
func (r *Repo) LastPage(ctx context.Context) (int, bool, error) {
	var page sql.NullInt64
	q := fmt.Sprintf(`SELECT MAX(%s) FROM %s`, sqlIdent("page"), sqlIdent(r.table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&page); err != nil {
		return 0, false, fmt.Errorf("last page of %s: %w", r.table, err)
	}
	if !page.Valid {
		return 0, false, nil
	}
	return int(page.Int64), true, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" INTEGER PRIMARY KEY AUTOINCREMENT,
  "page" INTEGER NOT NULL,
  "position" INTEGER NOT NULL,
  "name" TEXT NOT NULL,
  "address" TEXT NOT NULL,
  "fields" TEXT NOT NULL,
  "row_hash" TEXT NOT NULL UNIQUE
)`, sqlIdent(table))
}

func buildInsertSQL(table string, rows []storage.Row) (string, []any) {
	cols := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		cols[i] = sqlIdent(c)
	}
	tuple := "(" + strings.TrimRight(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row.Values()...)
	}
	return b.String(), args
}
