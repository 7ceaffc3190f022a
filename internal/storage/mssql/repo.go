// Package mssql is the Microsoft SQL Server storage backend.
//
// This package does not import a driver; the application registers the
// "sqlserver" database/sql driver (see storage/all).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"wbdscrape/internal/directory"
	"wbdscrape/internal/storage"
)

// batchRows keeps each statement under SQL Server's 2100 parameter limit.
const batchRows = 300

// Repo implements storage.Repository for SQL Server.
type Repo struct {
	db    dbConn
	table string
}

func init() {
	storage.Register("mssql", New)
}

// New opens cfg.DSN with the "sqlserver" driver and checks connectivity.
// The table name may be schema-qualified ("dbo.centers").
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}, table: cfg.TableName()}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureTable creates the records table unless it exists.
func (r *Repo) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(r.table)); err != nil {
		return fmt.Errorf("create table %s: %w", r.table, err)
	}
	return nil
}

// SaveRecords inserts the records in one transaction. Each batch is an
// INSERT ... SELECT ... WHERE NOT EXISTS keyed on row_hash, so stored rows
// are skipped.
func (r *Repo) SaveRecords(ctx context.Context, records []directory.Record) (int64, error) {
	// ToRows drops repeated hashes; SQL Server would otherwise try to insert
	// both copies of a new row and hit the UNIQUE constraint.
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
		q, args := buildInsertNotExistsSQL(r.table, batch)
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
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", mssqlIdent("page"), mssqlTableIdent(r.table))
	if err := r.db.QueryRowContext(ctx, q).Scan(&page); err != nil {
		return 0, false, fmt.Errorf("last page of %s: %w", r.table, err)
	}
	if !page.Valid {
		return 0, false, nil
	}
	return int(page.Int64), true, nil
}

// buildCreateSQL wraps CREATE TABLE in an OBJECT_ID guard, since SQL Server
// has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(table string) string {
	defs := strings.Join([]string{
		"[id] BIGINT IDENTITY(1,1) PRIMARY KEY",
		"[page] INT NOT NULL",
		"[position] INT NOT NULL",
		"[name] NVARCHAR(400) NOT NULL",
		"[address] NVARCHAR(1000) NOT NULL",
		"[fields] NVARCHAR(MAX) NOT NULL",
		"[row_hash] CHAR(64) NOT NULL UNIQUE",
	}, ", ")
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(table, "'", "''"),
		mssqlTableIdent(table),
		defs,
	)
}

// buildInsertNotExistsSQL builds one INSERT over a VALUES source with
// @p1..@pn placeholders, skipping rows whose row_hash is already stored.
func buildInsertNotExistsSQL(table string, rows []storage.Row) (string, []any) {
	cols := make([]string, len(storage.Columns))
	vcols := make([]string, len(storage.Columns))
	for i, c := range storage.Columns {
		cols[i] = mssqlIdent(c)
		vcols[i] = "v." + cols[i]
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") SELECT ")
	b.WriteString(strings.Join(vcols, ", "))
	b.WriteString(" FROM (VALUES ")

	args := make([]any, 0, len(rows)*len(cols))
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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, v)
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE t.[row_hash] = v.[row_hash])")
	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent quotes each part of a schema-qualified name.
//
//	"dbo.centers" -> [dbo].[centers]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// ---- database/sql seam types ----

// dbConn is the subset of *sql.DB this package uses.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the subset of *sql.Tx this package uses.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var _ dbConn = (*sqlDB)(nil)
