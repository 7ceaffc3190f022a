// Package postgres is the PostgreSQL storage backend (pgx/v5 pool).
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/storage"
)

// batchRows keeps each INSERT well under the 65535 parameter limit.
const batchRows = 1000

// Repo implements storage.Repository for Postgres.
type Repo struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

func init() {
	storage.Register("postgres", New)
}

// New creates a pool for cfg.DSN. The table name may be schema-qualified
// ("scrape.centers").
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, table: tableIdent(cfg.TableName())}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTable creates the schema (when qualified) and the records table.
func (r *Repo) EnsureTable(ctx context.Context) error {
	schemaSQL, tableSQL := buildCreateSQL(r.table)
	if schemaSQL != "" {
		if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema for %s: %w", r.table.Sanitize(), err)
		}
	}
	if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s: %w", r.table.Sanitize(), err)
	}
	return nil
}

// SaveRecords inserts the records in one transaction with
// ON CONFLICT (row_hash) DO NOTHING.
func (r *Repo) SaveRecords(ctx context.Context, records []directory.Record) (int64, error) {
	rows, err := storage.ToRows(records)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted int64
	for _, batch := range storage.Chunk(rows, batchRows) {
		q, args := buildInsertSQL(r.table, batch)
		tag, err := tx.Exec(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert into %s: %w", r.table.Sanitize(), err)
		}
		inserted += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// LastPage returns MAX(page) of the table.
func (r *Repo) LastPage(ctx context.Context) (int, bool, error) {
	var page *int32
	q := fmt.Sprintf(`SELECT MAX("page") FROM %s`, r.table.Sanitize())
	if err := r.pool.QueryRow(ctx, q).Scan(&page); err != nil {
		return 0, false, fmt.Errorf("last page of %s: %w", r.table.Sanitize(), err)
	}
	if page == nil {
		return 0, false, nil
	}
	return int(*page), true, nil
}

// tableIdent splits a possibly schema-qualified name into an identifier.
func tableIdent(name string) pgx.Identifier {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return pgx.Identifier(parts)
}

// buildCreateSQL returns the optional CREATE SCHEMA statement and the
// CREATE TABLE statement. fields is JSONB so the stored field map can be
// queried directly.
func buildCreateSQL(table pgx.Identifier) (schemaSQL, tableSQL string) {
	if len(table) > 1 {
		schemaSQL = fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{table[0]}.Sanitize())
	}
	tableSQL = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  "id" BIGSERIAL PRIMARY KEY,
  "page" INTEGER NOT NULL,
  "position" INTEGER NOT NULL,
  "name" TEXT NOT NULL,
  "address" TEXT NOT NULL,
  "fields" JSONB NOT NULL,
  "row_hash" TEXT NOT NULL UNIQUE
)`, table.Sanitize())
	return schemaSQL, tableSQL
}

// buildInsertSQL constructs a single multi-row INSERT and its args, with
// placeholders numbered $1..$n in row-major order.
func buildInsertSQL(table pgx.Identifier, rows []storage.Row) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Sanitize())
	b.WriteString(" (")
	for i, c := range storage.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(storage.Columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, v := range row.Values() {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			if storage.Columns[j] == "fields" {
				b.WriteString("::jsonb")
			}
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(` ON CONFLICT ("row_hash") DO NOTHING`)
	return b.String(), args
}
